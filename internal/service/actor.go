package service

// Actor 发起变更的用户及其组织，由请求头解析
type Actor struct {
	OrganizationID uint
	Name           string
}
