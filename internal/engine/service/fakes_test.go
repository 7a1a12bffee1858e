package service

import (
	"context"
	"time"

	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// In-memory repository fakes. Each mirrors the guarded update semantics of
// its GORM counterpart closely enough for service-level tests.

type fakeSignalRepo struct {
	signals    map[uint]*entity.Signal
	nextID     uint
	hashes     map[string]bool
	loseClaims map[uint]bool
}

func newFakeSignalRepo() *fakeSignalRepo {
	return &fakeSignalRepo{
		signals:    make(map[uint]*entity.Signal),
		hashes:     make(map[string]bool),
		loseClaims: make(map[uint]bool),
	}
}

func (r *fakeSignalRepo) Create(ctx context.Context, signal *entity.Signal) error {
	r.nextID++
	signal.ID = r.nextID
	copied := *signal
	r.signals[signal.ID] = &copied
	if signal.ContentHash != "" {
		r.hashes[signal.ContentHash] = true
	}
	return nil
}

func (r *fakeSignalRepo) FindByID(ctx context.Context, id uint) (*entity.Signal, error) {
	s, ok := r.signals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSignalRepo) FindPending(ctx context.Context, universeID string, targetIDs []string, limit int) ([]entity.Signal, error) {
	var out []entity.Signal
	for id := uint(1); id <= r.nextID; id++ {
		s, ok := r.signals[id]
		if !ok || s.Disposition != entity.SignalPending || s.UniverseID != universeID {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, s.TargetID) {
			continue
		}
		out = append(out, *s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeSignalRepo) Claim(ctx context.Context, signalID uint, workerID string) (*entity.Signal, bool, error) {
	s, ok := r.signals[signalID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if r.loseClaims[signalID] || s.Disposition != entity.SignalPending {
		return nil, false, nil
	}
	now := time.Now()
	s.Disposition = entity.SignalProcessing
	s.ProcessingWorker = workerID
	s.ProcessingStartedAt = &now
	copied := *s
	return &copied, true, nil
}

func (r *fakeSignalRepo) Finalize(ctx context.Context, signalID uint, to entity.SignalDisposition, evaluation datatypes.JSON) error {
	s, ok := r.signals[signalID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Disposition = to
	s.EvaluationResult = evaluation
	return nil
}

func (r *fakeSignalRepo) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	var released int64
	for _, s := range r.signals {
		if s.Disposition == entity.SignalProcessing && s.ProcessingStartedAt != nil && s.ProcessingStartedAt.Before(olderThan) {
			s.Disposition = entity.SignalPending
			s.ProcessingWorker = ""
			s.ProcessingStartedAt = nil
			released++
		}
	}
	return released, nil
}

func (r *fakeSignalRepo) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	var expired int64
	for _, s := range r.signals {
		if s.Disposition == entity.SignalPending && s.DetectedAt.Before(olderThan) {
			s.Disposition = entity.SignalExpired
			expired++
		}
	}
	return expired, nil
}

func (r *fakeSignalRepo) ExistsByContentHash(ctx context.Context, hash string) (bool, error) {
	return r.hashes[hash], nil
}

func (r *fakeSignalRepo) FindForReplayWindow(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Signal, error) {
	var out []entity.Signal
	for id := uint(1); id <= r.nextID; id++ {
		s, ok := r.signals[id]
		if !ok || s.UniverseID != universeID || s.DetectedAt.After(cutoff) {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, s.TargetID) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeSignalRepo) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	var ids []uint
	for id := uint(1); id <= r.nextID; id++ {
		s, ok := r.signals[id]
		if !ok || s.UniverseID != universeID || !s.DetectedAt.After(cutoff) {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, s.TargetID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeSignalRepo) WithTx(tx *gorm.DB) repository.SignalRepository { return r }

type fakePredictorRepo struct {
	predictors map[uint]*entity.Predictor
	nextID     uint
}

func newFakePredictorRepo() *fakePredictorRepo {
	return &fakePredictorRepo{predictors: make(map[uint]*entity.Predictor)}
}

func (r *fakePredictorRepo) Create(ctx context.Context, predictor *entity.Predictor) error {
	r.nextID++
	predictor.ID = r.nextID
	copied := *predictor
	r.predictors[predictor.ID] = &copied
	return nil
}

func (r *fakePredictorRepo) FindByID(ctx context.Context, id uint) (*entity.Predictor, error) {
	p, ok := r.predictors[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePredictorRepo) FindByIDs(ctx context.Context, ids []uint) ([]entity.Predictor, error) {
	var out []entity.Predictor
	for _, id := range ids {
		if p, ok := r.predictors[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePredictorRepo) FindActiveByTarget(ctx context.Context, targetID string, replayRunID *uint) ([]entity.Predictor, error) {
	var out []entity.Predictor
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictors[id]
		if !ok || p.TargetID != targetID || p.Status != entity.PredictorActive {
			continue
		}
		if replayRunID == nil && p.ReplayRunID != nil {
			continue
		}
		if replayRunID != nil && (p.ReplayRunID == nil || *p.ReplayRunID != *replayRunID) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePredictorRepo) Consume(ctx context.Context, predictorID, predictionID uint) error {
	p, ok := r.predictors[predictorID]
	if !ok || p.Status != entity.PredictorActive {
		return repository.ErrPredictorConsumed
	}
	now := time.Now()
	p.Status = entity.PredictorConsumed
	p.ConsumedAt = &now
	p.ConsumedByPredictionID = &predictionID
	return nil
}

func (r *fakePredictorRepo) ExpireActive(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	for _, p := range r.predictors {
		if p.Status == entity.PredictorActive && p.ExpiresAt.Before(now) {
			p.Status = entity.PredictorExpired
			expired++
		}
	}
	return expired, nil
}

func (r *fakePredictorRepo) DeleteByReplayRun(ctx context.Context, replayRunID uint) error {
	for id, p := range r.predictors {
		if p.ReplayRunID != nil && *p.ReplayRunID == replayRunID {
			delete(r.predictors, id)
		}
	}
	return nil
}

func (r *fakePredictorRepo) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	var ids []uint
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictors[id]
		if !ok || !p.CreatedAt.After(cutoff) {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, p.TargetID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakePredictorRepo) WithTx(tx *gorm.DB) repository.PredictorRepository { return r }

type fakePredictionRepo struct {
	predictions map[uint]*entity.Prediction
	nextID      uint
}

func newFakePredictionRepo() *fakePredictionRepo {
	return &fakePredictionRepo{predictions: make(map[uint]*entity.Prediction)}
}

func (r *fakePredictionRepo) add(p entity.Prediction) *entity.Prediction {
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	r.predictions[p.ID] = &p
	return &p
}

func (r *fakePredictionRepo) Create(ctx context.Context, prediction *entity.Prediction) error {
	r.nextID++
	prediction.ID = r.nextID
	copied := *prediction
	r.predictions[prediction.ID] = &copied
	return nil
}

func (r *fakePredictionRepo) FindByID(ctx context.Context, id uint) (*entity.Prediction, error) {
	p, ok := r.predictions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePredictionRepo) FindByIDs(ctx context.Context, ids []uint) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for _, id := range ids {
		if p, ok := r.predictions[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePredictionRepo) Resolve(ctx context.Context, id uint, outcomeValue float64, capturedAt time.Time) error {
	p, ok := r.predictions[id]
	if !ok || p.Status != entity.PredictionActive {
		return gorm.ErrRecordNotFound
	}
	p.Status = entity.PredictionResolved
	p.OutcomeValue = &outcomeValue
	p.OutcomeCapturedAt = &capturedAt
	return nil
}

func (r *fakePredictionRepo) FindResolvedInWindow(ctx context.Context, universeID string, since time.Time) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictions[id]
		if !ok || p.UniverseID != universeID || p.Status != entity.PredictionResolved {
			continue
		}
		if p.PredictedAt.Before(since) || p.ReplayRunID != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePredictionRepo) FindOriginalsAfter(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictions[id]
		if !ok || p.UniverseID != universeID || p.ReplayRunID != nil || !p.PredictedAt.After(cutoff) {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, p.TargetID) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePredictionRepo) FindByReplayRun(ctx context.Context, replayRunID uint) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictions[id]
		if !ok || p.ReplayRunID == nil || *p.ReplayRunID != replayRunID {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePredictionRepo) DeleteByReplayRun(ctx context.Context, replayRunID uint) error {
	for id, p := range r.predictions {
		if p.ReplayRunID != nil && *p.ReplayRunID == replayRunID {
			delete(r.predictions, id)
		}
	}
	return nil
}

func (r *fakePredictionRepo) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	var ids []uint
	for id := uint(1); id <= r.nextID; id++ {
		p, ok := r.predictions[id]
		if !ok || p.UniverseID != universeID || p.ReplayRunID != nil || !p.PredictedAt.After(cutoff) {
			continue
		}
		if len(targetIDs) > 0 && !containsString(targetIDs, p.TargetID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakePredictionRepo) WithTx(tx *gorm.DB) repository.PredictionRepository { return r }

type fakeSnapshotRepo struct {
	snapshots map[uint]*entity.PredictionSnapshot
	nextID    uint
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[uint]*entity.PredictionSnapshot)}
}

func (r *fakeSnapshotRepo) Create(ctx context.Context, snapshot *entity.PredictionSnapshot) error {
	if _, ok := r.snapshots[snapshot.PredictionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.nextID++
	snapshot.ID = r.nextID
	copied := *snapshot
	r.snapshots[snapshot.PredictionID] = &copied
	return nil
}

func (r *fakeSnapshotRepo) FindByPredictionID(ctx context.Context, predictionID uint) (*entity.PredictionSnapshot, error) {
	s, ok := r.snapshots[predictionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSnapshotRepo) FindByPredictionIDs(ctx context.Context, predictionIDs []uint) ([]entity.PredictionSnapshot, error) {
	var out []entity.PredictionSnapshot
	for _, id := range predictionIDs {
		if s, ok := r.snapshots[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSnapshotRepo) WithTx(tx *gorm.DB) repository.SnapshotRepository { return r }

type fakeLearningRepo struct {
	learnings map[uint]*entity.Learning
	lineages  map[uint]*entity.LearningLineage
	nextID    uint
}

func newFakeLearningRepo() *fakeLearningRepo {
	return &fakeLearningRepo{
		learnings: make(map[uint]*entity.Learning),
		lineages:  make(map[uint]*entity.LearningLineage),
	}
}

func (r *fakeLearningRepo) add(l entity.Learning) *entity.Learning {
	if l.ID == 0 {
		r.nextID++
		l.ID = r.nextID
	} else if l.ID > r.nextID {
		r.nextID = l.ID
	}
	r.learnings[l.ID] = &l
	return &l
}

func (r *fakeLearningRepo) Create(ctx context.Context, learning *entity.Learning) error {
	r.nextID++
	learning.ID = r.nextID
	copied := *learning
	r.learnings[learning.ID] = &copied
	return nil
}

func (r *fakeLearningRepo) FindByID(ctx context.Context, id uint) (*entity.Learning, error) {
	l, ok := r.learnings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *l
	return &copied, nil
}

func (r *fakeLearningRepo) FindActiveTestByScope(ctx context.Context, scope entity.Scope, offset, limit int) ([]entity.Learning, int64, error) {
	level, domain, universeID, targetID := scope.Columns()
	var matched []entity.Learning
	for id := uint(1); id <= r.nextID; id++ {
		l, ok := r.learnings[id]
		if !ok || !l.IsTest || l.Status != entity.LearningActive || l.ScopeLevel != level {
			continue
		}
		if l.Domain != domain || l.UniverseID != universeID || l.TargetID != targetID {
			continue
		}
		matched = append(matched, *l)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *fakeLearningRepo) FindActiveForTarget(ctx context.Context, domain, universeID, targetID string, includeTest bool) ([]entity.Learning, error) {
	var out []entity.Learning
	for id := uint(1); id <= r.nextID; id++ {
		l, ok := r.learnings[id]
		if !ok || l.Status != entity.LearningActive {
			continue
		}
		if l.IsTest && !includeTest {
			continue
		}
		switch l.ScopeLevel {
		case entity.ScopeLevelRunner:
		case entity.ScopeLevelDomain:
			if l.Domain != domain {
				continue
			}
		case entity.ScopeLevelUniverse:
			if l.UniverseID != universeID {
				continue
			}
		case entity.ScopeLevelTarget:
			if l.TargetID != targetID {
				continue
			}
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeLearningRepo) Supersede(ctx context.Context, old *entity.Learning, replacement *entity.Learning) error {
	stored, ok := r.learnings[old.ID]
	if !ok || stored.Status != entity.LearningActive {
		return repository.ErrLearningNotActive
	}
	replacement.Version = old.Version + 1
	if err := r.Create(ctx, replacement); err != nil {
		return err
	}
	stored.Status = entity.LearningSuperseded
	stored.SupersededBy = &replacement.ID
	return nil
}

func (r *fakeLearningRepo) IncrementCounters(ctx context.Context, id uint, helpful bool) error {
	l, ok := r.learnings[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.TimesApplied++
	if helpful {
		l.TimesHelpful++
	}
	return nil
}

func (r *fakeLearningRepo) MarkHelpful(ctx context.Context, id uint) error {
	l, ok := r.learnings[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if l.TimesHelpful < l.TimesApplied {
		l.TimesHelpful++
	}
	return nil
}

func (r *fakeLearningRepo) CreateLineage(ctx context.Context, lineage *entity.LearningLineage) error {
	if _, ok := r.lineages[lineage.TestLearningID]; ok {
		return gorm.ErrDuplicatedKey
	}
	lineage.ID = uint(len(r.lineages) + 1)
	copied := *lineage
	r.lineages[lineage.TestLearningID] = &copied
	return nil
}

func (r *fakeLearningRepo) LineageByTestLearning(ctx context.Context, testLearningID uint) (*entity.LearningLineage, error) {
	l, ok := r.lineages[testLearningID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *l
	return &copied, nil
}

func (r *fakeLearningRepo) UpdateStatus(ctx context.Context, id uint, status entity.LearningStatus) error {
	l, ok := r.learnings[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.Status = status
	return nil
}

func (r *fakeLearningRepo) WithTx(tx *gorm.DB) repository.LearningRepository { return r }

type forkKey struct {
	analystID uint
	fork      entity.ForkType
}

type fakeAnalystRepo struct {
	analysts   map[uint]*entity.Analyst
	versions   []*entity.AnalystContextVersion
	portfolios map[forkKey]*entity.AnalystPortfolio
	nextID     uint
}

func newFakeAnalystRepo() *fakeAnalystRepo {
	return &fakeAnalystRepo{
		analysts:   make(map[uint]*entity.Analyst),
		portfolios: make(map[forkKey]*entity.AnalystPortfolio),
	}
}

func (r *fakeAnalystRepo) add(a entity.Analyst) *entity.Analyst {
	if a.ID == 0 {
		r.nextID++
		a.ID = r.nextID
	} else if a.ID > r.nextID {
		r.nextID = a.ID
	}
	r.analysts[a.ID] = &a
	return &a
}

func (r *fakeAnalystRepo) FindByID(ctx context.Context, id uint) (*entity.Analyst, error) {
	a, ok := r.analysts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAnalystRepo) FindBySlug(ctx context.Context, slug string) (*entity.Analyst, error) {
	for _, a := range r.analysts {
		if a.Slug == slug {
			copied := *a
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAnalystRepo) FindEnabledForTarget(ctx context.Context, domain, universeID, targetID string) ([]entity.Analyst, error) {
	var out []entity.Analyst
	for id := uint(1); id <= r.nextID; id++ {
		a, ok := r.analysts[id]
		if !ok || !a.IsEnabled {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAnalystRepo) CurrentVersion(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystContextVersion, error) {
	for _, v := range r.versions {
		if v.AnalystID == analystID && v.ForkType == fork && v.IsCurrent {
			copied := *v
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAnalystRepo) ListVersions(ctx context.Context, analystID uint, fork entity.ForkType) ([]entity.AnalystContextVersion, error) {
	var out []entity.AnalystContextVersion
	for _, v := range r.versions {
		if v.AnalystID == analystID && v.ForkType == fork {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeAnalystRepo) HasVersions(ctx context.Context, analystID uint, fork entity.ForkType) (bool, error) {
	for _, v := range r.versions {
		if v.AnalystID == analystID && v.ForkType == fork {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAnalystRepo) AppendVersion(ctx context.Context, version *entity.AnalystContextVersion) error {
	max := 0
	for _, v := range r.versions {
		if v.AnalystID == version.AnalystID && v.ForkType == version.ForkType {
			v.IsCurrent = false
			if v.VersionNumber > max {
				max = v.VersionNumber
			}
		}
	}
	version.VersionNumber = max + 1
	version.IsCurrent = true
	version.ID = uint(len(r.versions) + 1)
	copied := *version
	r.versions = append(r.versions, &copied)
	return nil
}

func (r *fakeAnalystRepo) Portfolio(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystPortfolio, error) {
	p, ok := r.portfolios[forkKey{analystID, fork}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeAnalystRepo) SavePortfolio(ctx context.Context, portfolio *entity.AnalystPortfolio) error {
	copied := *portfolio
	r.portfolios[forkKey{portfolio.AnalystID, portfolio.ForkType}] = &copied
	return nil
}

type fakeReplayRepo struct {
	runs        map[uint]*entity.ReplayRun
	comparisons []entity.ReplayComparison
	nextID      uint
}

func newFakeReplayRepo() *fakeReplayRepo {
	return &fakeReplayRepo{runs: make(map[uint]*entity.ReplayRun)}
}

func (r *fakeReplayRepo) Create(ctx context.Context, run *entity.ReplayRun) error {
	r.nextID++
	run.ID = r.nextID
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *fakeReplayRepo) FindByID(ctx context.Context, id uint) (*entity.ReplayRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *fakeReplayRepo) TransitionStatus(ctx context.Context, id uint, from, to entity.ReplayStatus) (bool, error) {
	run, ok := r.runs[id]
	if !ok || run.Status != from {
		return false, nil
	}
	run.Status = to
	if to == entity.ReplayRunning {
		now := time.Now()
		run.StartedAt = &now
	}
	return true, nil
}

func (r *fakeReplayRepo) Complete(ctx context.Context, id uint, results datatypes.JSON) error {
	run, ok := r.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	run.Status = entity.ReplayCompleted
	run.Results = results
	run.CompletedAt = &now
	return nil
}

func (r *fakeReplayRepo) Fail(ctx context.Context, id uint, errMsg string) error {
	run, ok := r.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	run.Status = entity.ReplayFailed
	run.ErrorMessage = errMsg
	return nil
}

func (r *fakeReplayRepo) HasRunningForUniverse(ctx context.Context, universeID string) (bool, error) {
	for _, run := range r.runs {
		if run.UniverseID == universeID && run.Status == entity.ReplayRunning {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReplayRepo) CreateComparisons(ctx context.Context, comparisons []entity.ReplayComparison) error {
	r.comparisons = append(r.comparisons, comparisons...)
	return nil
}

func (r *fakeReplayRepo) FindComparisons(ctx context.Context, replayRunID uint) ([]entity.ReplayComparison, error) {
	var out []entity.ReplayComparison
	for _, c := range r.comparisons {
		if c.ReplayRunID == replayRunID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeReplayRepo) DeleteCascade(ctx context.Context, id uint) error {
	delete(r.runs, id)
	kept := r.comparisons[:0]
	for _, c := range r.comparisons {
		if c.ReplayRunID != id {
			kept = append(kept, c)
		}
	}
	r.comparisons = kept
	return nil
}

// fakeAssessor returns a canned assessment per analyst slug.
type fakeAssessor struct {
	assessments map[string]*dto.AnalystAssessment
	err         error
}

func (f *fakeAssessor) Assess(ctx context.Context, req dto.AssessmentRequest) (*dto.AnalystAssessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.assessments[req.AnalystSlug]; ok {
		return a, nil
	}
	return &dto.AnalystAssessment{Direction: entity.DirectionNeutral}, nil
}

type fakeFeedRepo struct {
	articles []repository.FeedArticle
}

func (f *fakeFeedRepo) FetchArticles(ctx context.Context, target dto.FeedTarget, maxAge time.Duration) ([]repository.FeedArticle, error) {
	return f.articles, nil
}

// fakeEnsemble records every ProcessTarget call and serves canned decisions.
type fakeEnsemble struct {
	calls     []string
	decisions map[string]*EnsembleDecision
}

func (f *fakeEnsemble) ProcessTarget(ctx context.Context, universeID, targetID string, replayRunID *uint) (*EnsembleDecision, error) {
	f.calls = append(f.calls, targetID)
	if d, ok := f.decisions[targetID]; ok {
		return d, nil
	}
	return &EnsembleDecision{}, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
