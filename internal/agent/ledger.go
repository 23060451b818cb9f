package agent

const (
	// MaxLiveAgentsPerUser 是单个创建者名下允许的存活（未删除）智能体上限。
	MaxLiveAgentsPerUser = 10
	// MaxSponsoredPerUser 是单个创建者可享受的赞助名额上限。
	MaxSponsoredPerUser = 10
)

// Account 是创建者维度的账本：存活计数、赞助计数、持有列表与下一个编号。
// liveCount 统计的是未删除的智能体，暂停不会使其减少。
type Account struct {
	Creator        string   `json:"creator"`
	LiveCount      uint64   `json:"live_count"`
	SponsoredCount uint64   `json:"sponsored_count"`
	OwnedIDs       []uint64 `json:"owned_ids"`
	NextID         uint64   `json:"next_id"`
}

// NewAccount 返回一个尚未创建过智能体的账本条目。
func NewAccount(creator string) *Account {
	return &Account{Creator: creator, NextID: 1}
}

// Clone 返回账本条目的深拷贝。
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.OwnedIDs = append([]uint64(nil), a.OwnedIDs...)
	return &clone
}

// CanCreateMore 判断账本是否还有剩余的智能体名额。纯读取，无副作用。
func (a *Account) CanCreateMore() bool {
	if a == nil {
		return true
	}
	return a.LiveCount < MaxLiveAgentsPerUser
}

// CanSponsor 判断账本是否还有剩余的赞助名额。纯读取，无副作用。
func (a *Account) CanSponsor() bool {
	if a == nil {
		return true
	}
	return a.SponsoredCount < MaxSponsoredPerUser
}

// UserInfo 是 getUserInfo 视图的返回结构。
// 对没有账本条目的用户返回零值与 can_sponsor=true。
type UserInfo struct {
	Creator        string `json:"creator"`
	LiveCount      uint64 `json:"live_count"`
	SponsoredCount uint64 `json:"sponsored_count"`
	CanCreateMore  bool   `json:"can_create_more"`
	CanSponsor     bool   `json:"can_sponsor"`
}

// InfoFor 把账本条目折算成视图结构。
func InfoFor(creator string, account *Account) UserInfo {
	info := UserInfo{Creator: creator, CanCreateMore: true, CanSponsor: true}
	if account == nil {
		return info
	}
	info.LiveCount = account.LiveCount
	info.SponsoredCount = account.SponsoredCount
	info.CanCreateMore = account.CanCreateMore()
	info.CanSponsor = account.CanSponsor()
	return info
}

// PlatformStats 是平台维度的聚合计数。
// totalCreated 只增不减，totalLive 仅在删除时回落。
type PlatformStats struct {
	TotalCreated uint64 `json:"total_created"`
	TotalLive    uint64 `json:"total_live"`
}
