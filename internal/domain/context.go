package domain

import (
	"context"
	"fmt"
)

type ctxKey string

const CtxUserInfo ctxKey = "userInfo"

const (
	CtxSystemAdminId  = "_RA_SYS_ADMIN_"
	CtxSystemSyncerId = "_RA_SYS_SYNCER_"
	CtxUnknownUserId  = "_RA_SYS_UNKNOWN_"
)

type ContextUserInfo struct {
	Id      UserIdentifier
	IsAdmin bool
}

func (u *ContextUserInfo) String() string {
	return fmt.Sprintf("%s|%t", u.Id, u.IsAdmin)
}

func (u *ContextUserInfo) UserId() string {
	return string(u.Id)
}

func DefaultContextUserInfo() *ContextUserInfo {
	return &ContextUserInfo{
		Id:      CtxUnknownUserId,
		IsAdmin: false,
	}
}

func SystemAdminContextUserInfo() *ContextUserInfo {
	return &ContextUserInfo{
		Id:      CtxSystemAdminId,
		IsAdmin: true,
	}
}

// SyncContextUserInfo is used by the background refresh jobs.
func SyncContextUserInfo() *ContextUserInfo {
	return &ContextUserInfo{
		Id:      CtxSystemSyncerId,
		IsAdmin: true,
	}
}

func SetUserInfo(ctx context.Context, info *ContextUserInfo) context.Context {
	ctx = context.WithValue(ctx, CtxUserInfo, info)
	return ctx
}

func GetUserInfo(ctx context.Context) *ContextUserInfo {
	rawInfo := ctx.Value(CtxUserInfo)
	if rawInfo == nil {
		return DefaultContextUserInfo()
	}

	if info, ok := rawInfo.(*ContextUserInfo); ok {
		return info
	}

	return DefaultContextUserInfo()
}
