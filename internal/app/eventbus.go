package app

const TopicAuthLogin = "auth:login"
const TopicAuthLoginFailed = "auth:login-failed"
const TopicPasswordChanged = "auth:password-changed"
const TopicUserCreated = "user:created"
const TopicUserRefreshed = "user:refreshed"
const TopicUserGroupsChanged = "user:groups-changed"
const TopicPreferencesPushed = "user:preferences-pushed"
