package position

import (
	"sync"
	"time"
)

// State 为单个持仓跨tick维护的生命周期状态。
// PeakProfitR 在持仓存续期内单调不减。
type State struct {
	PeakProfitR float64
	AddCount    int
	DCACount    int
	FirstSeen   time.Time
	UpdatedAt   time.Time
}

// StateStore 以持仓ID为键维护生命周期状态。
// 每个ID同一时刻只有一个评估者写入（见并发约定），跨ID互不影响。
type StateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewStateStore 创建空的状态存储。
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]*State)}
}

// Observe 记录一次tick观察：首次见到该ID时以当前盈亏初始化峰值，
// 否则仅在创出新高时抬升峰值。返回更新后的状态副本。
func (s *StateStore) Observe(id string, currentR float64, now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		st = &State{
			PeakProfitR: currentR,
			FirstSeen:   now,
		}
		s.states[id] = st
	} else if currentR > st.PeakProfitR {
		st.PeakProfitR = currentR
	}
	st.UpdatedAt = now

	return *st
}

// RecordAdd 累加加仓次数，返回累加后的值。
func (s *StateStore) RecordAdd(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.AddCount++
		return st.AddCount
	}
	return 0
}

// RecordDCA 累加补仓次数，返回累加后的值。
func (s *StateStore) RecordDCA(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.DCACount++
		return st.DCACount
	}
	return 0
}

// Get 返回指定ID的状态副本。
func (s *StateStore) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Drop 在执行端报告持仓关闭后删除状态。
func (s *StateStore) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
}

// Len 返回当前跟踪的持仓数量。
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
