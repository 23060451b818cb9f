package keeper

// Policy 决定某个执行者能否代为触发一次执行。
// 创建者本人总是允许的，调用方无需为此咨询 Policy。
type Policy interface {
	CanExecute(executor string) bool
}

// StaticSet 按固定允许名单授权，是真实 keeper 注册表的占位实现。
type StaticSet struct {
	allowed map[string]struct{}
}

// NewStaticSet 创建允许名单。
func NewStaticSet(executors ...string) *StaticSet {
	set := make(map[string]struct{}, len(executors))
	for _, executor := range executors {
		if executor == "" {
			continue
		}
		set[executor] = struct{}{}
	}
	return &StaticSet{allowed: set}
}

// CanExecute 实现 Policy 接口。
func (s *StaticSet) CanExecute(executor string) bool {
	if s == nil {
		return false
	}
	_, ok := s.allowed[executor]
	return ok
}

// DenyAll 拒绝所有第三方执行者，只保留创建者自驱。
type DenyAll struct{}

// CanExecute 实现 Policy 接口。
func (DenyAll) CanExecute(string) bool { return false }

var (
	_ Policy = (*StaticSet)(nil)
	_ Policy = DenyAll{}
)
