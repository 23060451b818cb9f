package agent

import (
	"context"
	"log/slog"
	"time"

	"OpenDCA-Chain/internal/directory"
	xerrors "OpenDCA-Chain/internal/errors"
	"OpenDCA-Chain/internal/keeper"
	"OpenDCA-Chain/internal/notify"
	"OpenDCA-Chain/internal/observability/metrics"
	"OpenDCA-Chain/pkg/logger"
)

// Service 是操作入口：校验、编排存储与外部协作方、发出事件。
// 每个操作要么完整提交要么完整失败，事件只在提交之后发出。
type Service struct {
	store     Store
	directory directory.Directory
	publisher notify.Publisher
	engine    *Engine
	policy    keeper.Policy
	locks     *keyedMutex
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithKeeperPolicy 配置第三方执行者的授权策略。
func WithKeeperPolicy(policy keeper.Policy) ServiceOption {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// NewService 构造服务。
func NewService(store Store, dir directory.Directory, publisher notify.Publisher, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		directory: dir,
		publisher: publisher,
		engine:    engine,
		policy:    keeper.DenyAll{},
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateRequest 是 createAgent 操作的入参。
type CreateRequest struct {
	Creator     string `json:"creator"`
	DisplayName string `json:"display_name"`
	Spec        Spec   `json:"spec"`
}

// Create 创建一个新的智能体。
// 输入校验全部通过之后才触碰账本；名额检查与占用由存储层原子完成。
func (s *Service) Create(ctx context.Context, req CreateRequest) (ag *Agent, err error) {
	defer s.observe("create_agent", time.Now(), &err)

	if s.store == nil || s.engine == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	if req.Creator == "" {
		return nil, xerrors.New(CodeInvalidInput, "创建者不能为空")
	}
	if nameErr := ValidateDisplayName(req.DisplayName); nameErr != nil {
		return nil, nameErr
	}
	kind, specErr := req.Spec.Validate()
	if specErr != nil {
		return nil, specErr
	}

	var creationPrice uint64
	if !kind.IsInterval() {
		creationPrice, err = s.engine.FetchCreationPrice(ctx, req.Spec.Asset)
		if err != nil {
			return nil, err
		}
	}

	now := s.engine.Now()
	template := &Agent{
		Creator:      req.Creator,
		DisplayName:  req.DisplayName,
		StrategyType: req.Spec.TypeTag,
		State:        StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Strategy:     NewStrategy(req.Spec, kind, now, creationPrice),
	}
	created, err := s.store.CreateAgent(ctx, template)
	if err != nil {
		return nil, err
	}

	s.registerInDirectory(ctx, created)

	event := notify.NewEvent(notify.EventAgentCreated, created.Creator, created.ID)
	event.AgentCreated = &notify.AgentCreated{
		StrategyType: created.StrategyType,
		DisplayName:  created.DisplayName,
		Sponsored:    created.Sponsored,
	}
	s.publish(ctx, event)

	logger.Audit().Info("智能体创建成功",
		slog.String("creator", created.Creator),
		slog.Uint64("agent_id", created.ID),
		slog.String("strategy_type", created.StrategyType),
		slog.Bool("sponsored", created.Sponsored),
	)
	return created, nil
}

// Pause 把智能体从 Active 切换到 Paused。
func (s *Service) Pause(ctx context.Context, caller, creator string, id uint64) (ag *Agent, err error) {
	defer s.observe("pause_agent", time.Now(), &err)
	return s.transition(ctx, caller, creator, id, StatePaused)
}

// Resume 把智能体从 Paused 切换回 Active。
func (s *Service) Resume(ctx context.Context, caller, creator string, id uint64) (ag *Agent, err error) {
	defer s.observe("resume_agent", time.Now(), &err)
	return s.transition(ctx, caller, creator, id, StateActive)
}

func (s *Service) transition(ctx context.Context, caller, creator string, id uint64, to State) (*Agent, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	if caller != creator {
		return nil, ErrNotAuthorized
	}
	before, err := s.store.Get(ctx, creator, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Transition(ctx, creator, id, to, s.engine.Now())
	if err != nil {
		return nil, err
	}

	s.setDirectoryActive(ctx, updated, to == StateActive)

	event := notify.NewEvent(notify.EventAgentStateChanged, creator, id)
	event.StateChanged = &notify.StateChanged{
		OldState: string(before.State),
		NewState: string(updated.State),
	}
	s.publish(ctx, event)
	return updated, nil
}

// Delete 把智能体迁移到终态 Deleted 并释放账本名额。
// 暂停中的智能体同样无条件释放存活名额；赞助名额仅对受赞助者释放。
func (s *Service) Delete(ctx context.Context, caller, creator string, id uint64) (err error) {
	defer s.observe("delete_agent", time.Now(), &err)

	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	if caller != creator {
		return ErrNotAuthorized
	}
	deleted, err := s.store.Transition(ctx, creator, id, StateDeleted, s.engine.Now())
	if err != nil {
		return err
	}

	if s.directory != nil {
		if dirErr := s.directory.Remove(ctx, creator, id); dirErr != nil {
			logger.L().Warn("移除目录条目失败", slog.Any("error", dirErr),
				slog.String("creator", creator), slog.Uint64("agent_id", id))
		}
	}

	event := notify.NewEvent(notify.EventAgentDeleted, creator, id)
	event.AgentDeleted = &notify.AgentDeleted{Sponsored: deleted.Sponsored}
	s.publish(ctx, event)

	if st := deleted.Strategy; st != nil {
		withdrawal := notify.NewEvent(notify.EventFundsWithdrawn, creator, id)
		if st.Kind.IsBuy() {
			withdrawal.FundsWithdrawn = &notify.FundsWithdrawn{
				QuoteAmount: st.RemainingBalance,
				BaseAmount:  st.TotalBase,
			}
		} else {
			withdrawal.FundsWithdrawn = &notify.FundsWithdrawn{
				QuoteAmount: st.TotalQuote,
				BaseAmount:  st.RemainingBalance,
			}
		}
		s.publish(ctx, withdrawal)
	}

	logger.Audit().Info("智能体已删除",
		slog.String("creator", creator),
		slog.Uint64("agent_id", id),
		slog.Bool("sponsored", deleted.Sponsored),
	)
	return nil
}

// Execute 触发一次执行尝试。
// 执行者可以是创建者本人，也可以是授权名单内的 keeper。
// 同一智能体上的尝试被锁串行化，同一窗口内至多一次成功执行。
func (s *Service) Execute(ctx context.Context, executor, creator string, id uint64) (outcome Outcome, err error) {
	defer s.observe("execute_tick", time.Now(), &err)

	if s.store == nil || s.engine == nil {
		return Outcome{}, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	if executor != creator && !s.policy.CanExecute(executor) {
		return Outcome{}, ErrNotAuthorized
	}

	unlock := s.locks.lock(creator, id)
	defer unlock()

	ag, err := s.store.Get(ctx, creator, id)
	if err != nil {
		return Outcome{}, err
	}
	switch ag.State {
	case StateDeleted:
		return Outcome{}, ErrAgentNotFound
	case StatePaused:
		return Outcome{}, ErrNotActive
	}

	expectedCount := ag.Strategy.ExecutionCount
	outcome, err = s.engine.Run(ctx, ag)
	if err != nil {
		// 未触发的阈值观测同样通知索引器。
		if outcome.Observation != nil {
			s.publishObservation(ctx, creator, id, outcome.Observation)
		}
		return Outcome{}, err
	}
	if outcome.Skipped {
		return outcome, nil
	}
	if outcome.Halted {
		if haltErr := s.store.HaltStrategy(ctx, creator, id, ag.UpdatedAt); haltErr != nil {
			return Outcome{}, haltErr
		}
		halted := notify.NewEvent(notify.EventStrategyHalted, creator, id)
		halted.StrategyHalted = &notify.StrategyHalted{Reason: string(outcome.HaltReason)}
		s.publish(ctx, halted)
		logger.Audit().Info("策略停止执行",
			slog.String("creator", creator),
			slog.Uint64("agent_id", id),
			slog.String("reason", string(outcome.HaltReason)),
		)
		return outcome, nil
	}

	if err = s.store.CommitExecution(ctx, ag, expectedCount); err != nil {
		return Outcome{}, err
	}

	if s.directory != nil {
		if dirErr := s.directory.SetTransactionCount(ctx, creator, id, ag.TotalTransactions); dirErr != nil {
			logger.L().Warn("更新目录交易计数失败", slog.Any("error", dirErr),
				slog.String("creator", creator), slog.Uint64("agent_id", id))
		}
	}

	executed := notify.NewEvent(notify.EventStrategyExecuted, creator, id)
	executed.StrategyExecuted = &notify.StrategyExecuted{
		AmountIn:       outcome.AmountIn,
		AmountOut:      outcome.AmountOut,
		ExecutionPrice: outcome.ExecutionPrice,
		ExecutionCount: ag.Strategy.ExecutionCount,
	}
	s.publish(ctx, executed)
	if outcome.Observation != nil {
		s.publishObservation(ctx, creator, id, outcome.Observation)
	}

	logger.Audit().Info("策略执行成功",
		slog.String("creator", creator),
		slog.Uint64("agent_id", id),
		slog.Uint64("amount_in", outcome.AmountIn),
		slog.Uint64("amount_out", outcome.AmountOut),
		slog.Uint64("execution_count", ag.Strategy.ExecutionCount),
	)
	return outcome, nil
}

// AgentInfo 返回智能体的完整配置与运行累计。已删除的按不存在处理。
func (s *Service) AgentInfo(ctx context.Context, creator string, id uint64) (ag *Agent, err error) {
	defer s.observe("get_agent_info", time.Now(), &err)

	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	ag, err = s.store.Get(ctx, creator, id)
	if err != nil {
		return nil, err
	}
	if ag.State == StateDeleted {
		return nil, ErrAgentNotFound
	}
	return ag, nil
}

// ListAgents 按创建顺序返回创建者名下的智能体。
func (s *Service) ListAgents(ctx context.Context, creator string) (agents []*Agent, err error) {
	defer s.observe("list_agents", time.Now(), &err)

	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	return s.store.ListByCreator(ctx, creator)
}

// UserInfo 返回创建者账本视图，对没有账本记录的用户返回默认值。
func (s *Service) UserInfo(ctx context.Context, creator string) (info UserInfo, err error) {
	defer s.observe("get_user_info", time.Now(), &err)

	if s.store == nil {
		return UserInfo{}, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	account, err := s.store.Account(ctx, creator)
	if err != nil {
		return UserInfo{}, err
	}
	return InfoFor(creator, account), nil
}

// PlatformStats 返回平台聚合计数。
func (s *Service) PlatformStats(ctx context.Context) (stats PlatformStats, err error) {
	defer s.observe("get_platform_stats", time.Now(), &err)

	if s.store == nil {
		return PlatformStats{}, xerrors.New(xerrors.CodeInitializationFailure, "服务未初始化")
	}
	return s.store.PlatformStats(ctx)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.directory != nil {
		if err := s.directory.Close(); err != nil {
			return err
		}
	}
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

func (s *Service) registerInDirectory(ctx context.Context, ag *Agent) {
	if s.directory == nil {
		return
	}
	err := s.directory.Register(ctx, directory.Registration{
		Creator:      ag.Creator,
		AgentID:      ag.ID,
		StrategyType: ag.StrategyType,
		DisplayName:  ag.DisplayName,
	})
	if err != nil {
		// 目录只是读侧投影，登记失败不回滚创建。
		logger.L().Warn("登记目录条目失败", slog.Any("error", err),
			slog.String("creator", ag.Creator), slog.Uint64("agent_id", ag.ID))
	}
}

func (s *Service) setDirectoryActive(ctx context.Context, ag *Agent, active bool) {
	if s.directory == nil {
		return
	}
	if err := s.directory.SetActive(ctx, ag.Creator, ag.ID, active); err != nil {
		logger.L().Warn("更新目录活跃标记失败", slog.Any("error", err),
			slog.String("creator", ag.Creator), slog.Uint64("agent_id", ag.ID))
	}
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.L().Warn("事件投递失败", slog.Any("error", err),
			slog.String("event_id", event.EventID), slog.String("type", string(event.Type)))
	}
}

func (s *Service) publishObservation(ctx context.Context, creator string, id uint64, obs *Observation) {
	event := notify.NewEvent(notify.EventPriceObserved, creator, id)
	event.PriceObserved = &notify.PriceObserved{
		OldPrice:  obs.OldPrice,
		NewPrice:  obs.NewPrice,
		PctChange: obs.PctChange,
		Triggered: obs.Triggered,
	}
	s.publish(ctx, event)
}

func (s *Service) observe(op string, start time.Time, err *error) {
	code := "ok"
	if err != nil && *err != nil {
		code = string(xerrors.CodeOf(*err))
	}
	metrics.ObserveOperation(op, code, time.Since(start))
}
