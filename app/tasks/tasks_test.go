package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/sports-comb/app/cfg"
	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/locks"
	"github.com/lysyi3m/sports-comb/app/source"
)

func setupTestConfig() {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	cfg.Load()
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[feed.SectionKey]source.Result
	calls   []feed.SectionKey
	limits  []int
}

func (f *fakeFetcher) Fetch(ctx context.Context, key feed.SectionKey, maxItems int) source.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, key)
	f.limits = append(f.limits, maxItems)

	result, ok := f.results[key]
	if !ok {
		return source.Result{Key: key, Err: fmt.Errorf("no result for %s", key)}
	}
	result.Key = key
	return result
}

type fakeTopicRepo struct {
	payloads map[string][]byte
	saveErr  error
}

func (r *fakeTopicRepo) SaveProcessedTopic(name string, payload []byte, updatedAt time.Time) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.payloads == nil {
		r.payloads = make(map[string][]byte)
	}
	r.payloads[name] = payload
	return nil
}

func (r *fakeTopicRepo) GetProcessedTopic(name string) ([]byte, error) {
	return r.payloads[name], nil
}

func (r *fakeTopicRepo) ListProcessedTopics() ([]database.ProcessedTopicInfo, error) {
	return nil, nil
}

func (r *fakeTopicRepo) GetProcessedTopicCount() (int, error) {
	return len(r.payloads), nil
}

type refresh struct {
	found     int
	added     int
	lastError string
}

type fakeSectionRepo struct {
	upserts   map[feed.SectionKey]string
	refreshes map[feed.SectionKey]refresh
	kept      []feed.SectionKey
}

func newFakeSectionRepo() *fakeSectionRepo {
	return &fakeSectionRepo{
		upserts:   make(map[feed.SectionKey]string),
		refreshes: make(map[feed.SectionKey]refresh),
	}
}

func (r *fakeSectionRepo) UpsertSection(key feed.SectionKey, displayName, url string) error {
	r.upserts[key] = displayName
	return nil
}

func (r *fakeSectionRepo) RecordRefresh(key feed.SectionKey, refreshedAt time.Time, found, added int, lastError string) error {
	r.refreshes[key] = refresh{found: found, added: added, lastError: lastError}
	return nil
}

func (r *fakeSectionRepo) GetSection(key feed.SectionKey) (*database.Section, error) {
	return nil, nil
}

func (r *fakeSectionRepo) GetSections() ([]database.Section, error) {
	return nil, nil
}

func (r *fakeSectionRepo) DeleteSectionsExcept(keep []feed.SectionKey) (int, error) {
	r.kept = keep
	return 1, nil
}

type fakeArticleRepo struct {
	mu   sync.Mutex
	seen map[feed.SectionKey]map[string]bool
	kept []feed.SectionKey
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{seen: make(map[feed.SectionKey]map[string]bool)}
}

func (r *fakeArticleRepo) UpsertArticles(key feed.SectionKey, items []feed.RawItem, scrapedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[key] == nil {
		r.seen[key] = make(map[string]bool)
	}
	inserted := 0
	for _, item := range items {
		if item.Link == "" || r.seen[key][item.Link] {
			continue
		}
		r.seen[key][item.Link] = true
		inserted++
	}
	return inserted, nil
}

func (r *fakeArticleRepo) GetRecentArticles(key feed.SectionKey, q database.ArticleQuery) ([]database.Article, error) {
	return nil, nil
}

func (r *fakeArticleRepo) GetArticleCount() (int, error) {
	return 0, nil
}

func (r *fakeArticleRepo) DeleteArticlesExcept(keep []feed.SectionKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kept = keep
	return 0, nil
}

type fakeRunRepo struct {
	started  []string
	statuses map[string]string
	counts   map[string]int
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{statuses: make(map[string]string), counts: make(map[string]int)}
}

func (r *fakeRunRepo) StartRun(id, topic string, startedAt time.Time) error {
	r.started = append(r.started, id)
	r.statuses[id] = database.RunStatusRunning
	return nil
}

func (r *fakeRunRepo) FinishRun(id string, finishedAt time.Time, status string, itemCount int, errMsg string) error {
	r.statuses[id] = status
	r.counts[id] = itemCount
	return nil
}

func (r *fakeRunRepo) GetRecentRuns(topic string, limit int) ([]database.AggregationRun, error) {
	return nil, nil
}

var (
	geFutebol     = feed.SectionKey{Source: "ge", Section: "futebol"}
	lanceFlamengo = feed.SectionKey{Source: "lance", Section: "flamengo"}
	uolEsporte    = feed.SectionKey{Source: "uol", Section: "esporte"}
)

func testTopic() *feed.TopicConfig {
	return &feed.TopicConfig{
		Name:                "futebol",
		PrioritySourceOrder: []string{"ge", "lance", "uol"},
		Sources: map[string][]string{
			"ge":    {"futebol"},
			"lance": {"flamengo"},
			"uol":   {"esporte"},
		},
		ItemsPerSection: 15,
	}
}

func item(source, title, link, pubDate string) feed.RawItem {
	return feed.RawItem{Title: title, Link: link, PubDate: pubDate, Source: source}
}

func newTestRefresher(fetcher SectionFetcher, locker SectionLocker, sectionRepo database.SectionRepository) *SectionRefresher {
	return NewSectionRefresher(fetcher, locker, newFakeArticleRepo(), sectionRepo)
}

func TestAggregateTopicTaskExecute(t *testing.T) {
	fetcher := &fakeFetcher{results: map[feed.SectionKey]source.Result{
		geFutebol: {Found: 2, Items: []feed.RawItem{
			item("ge", "Flamengo vence o Palmeiras no Maracanã", "https://ge.globo.com/a", "2025-05-01T12:00:00Z"),
			item("ge", "Corinthians anuncia novo técnico", "https://ge.globo.com/b", "2025-05-01T10:00:00Z"),
		}},
		lanceFlamengo: {Found: 3, Filtered: 1, Items: []feed.RawItem{
			item("lance", "Flamengo vence o Palmeiras no Maracanã!", "https://lance.com.br/x", "2025-05-01T12:30:00Z"),
			item("lance", "Sem data", "https://lance.com.br/y", ""),
		}},
		uolEsporte: {Err: errors.New("status 503")},
	}}
	topicRepo := &fakeTopicRepo{}
	sectionRepo := newFakeSectionRepo()
	runRepo := newFakeRunRepo()

	refresher := newTestRefresher(fetcher, locks.NewManager(time.Minute), sectionRepo)
	task := NewAggregateTopicTask(testTopic(), refresher, topicRepo, runRepo)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(fetcher.calls) != 3 {
		t.Fatalf("Expected 3 section fetches, got %d", len(fetcher.calls))
	}
	for _, limit := range fetcher.limits {
		if limit != 15 {
			t.Errorf("Expected per-section limit 15, got %d", limit)
		}
	}

	payload, ok := topicRepo.payloads["futebol"]
	if !ok {
		t.Fatal("Expected processed topic to be saved")
	}
	processed, err := feed.UnmarshalProcessedTopic(payload)
	if err != nil {
		t.Fatalf("Expected valid payload, got: %v", err)
	}

	if len(processed.Items) != 2 {
		t.Fatalf("Expected 2 items after deduplication, got %d", len(processed.Items))
	}
	first := processed.Items[0]
	if first.Source != "ge" {
		t.Errorf("Expected priority source 'ge' to win, got '%s'", first.Source)
	}
	if len(first.MergedFrom) != 1 || first.MergedFrom[0].Link != "https://lance.com.br/x" {
		t.Errorf("Expected lance item in merged_from, got %+v", first.MergedFrom)
	}

	if got := sectionRepo.refreshes[geFutebol]; got.found != 2 || got.added != 2 || got.lastError != "" {
		t.Errorf("Expected ge stats found=2 added=2, got %+v", got)
	}
	if got := sectionRepo.refreshes[lanceFlamengo]; got.found != 3 || got.added != 2 {
		t.Errorf("Expected lance stats found=3 added=2, got %+v", got)
	}
	if got := sectionRepo.refreshes[uolEsporte]; got.lastError != "status 503" {
		t.Errorf("Expected uol error to be recorded, got %+v", got)
	}

	if len(runRepo.started) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runRepo.started))
	}
	runID := runRepo.started[0]
	if runRepo.statuses[runID] != database.RunStatusSucceeded {
		t.Errorf("Expected run status '%s', got '%s'", database.RunStatusSucceeded, runRepo.statuses[runID])
	}
	if runRepo.counts[runID] != 2 {
		t.Errorf("Expected run item count 2, got %d", runRepo.counts[runID])
	}

	again := NewAggregateTopicTask(testTopic(), refresher, topicRepo, runRepo)
	if err := again.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error on second run, got: %v", err)
	}
	if got := sectionRepo.refreshes[geFutebol]; got.found != 2 || got.added != 0 {
		t.Errorf("Expected known URLs not to count as added, got %+v", got)
	}
}

func TestAggregateTopicTaskSkipsLockedSection(t *testing.T) {
	fetcher := &fakeFetcher{results: map[feed.SectionKey]source.Result{
		geFutebol:     {Found: 1, Items: []feed.RawItem{item("ge", "Gol", "https://ge.globo.com/a", "2025-05-01T12:00:00Z")}},
		lanceFlamengo: {},
		uolEsporte:    {},
	}}
	manager := locks.NewManager(time.Hour)
	if !manager.Acquire(lanceFlamengo) {
		t.Fatal("Expected to acquire lock")
	}

	topicRepo := &fakeTopicRepo{}
	sectionRepo := newFakeSectionRepo()
	runRepo := newFakeRunRepo()
	task := NewAggregateTopicTask(testTopic(), newTestRefresher(fetcher, manager, sectionRepo), topicRepo, runRepo)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, key := range fetcher.calls {
		if key == lanceFlamengo {
			t.Error("Expected locked section not to be fetched")
		}
	}
	if _, ok := topicRepo.payloads["futebol"]; ok {
		t.Error("Expected no payload to be saved while a section is busy")
	}
	if _, ok := sectionRepo.refreshes[lanceFlamengo]; ok {
		t.Error("Expected no stats for skipped section")
	}
	if got := sectionRepo.refreshes[geFutebol]; got.found != 1 || got.added != 1 {
		t.Errorf("Expected fetched sections to record stats, got %+v", got)
	}
	if status := runRepo.statuses[runRepo.started[0]]; status != database.RunStatusSkipped {
		t.Errorf("Expected run status '%s', got '%s'", database.RunStatusSkipped, status)
	}
	if !manager.IsHeld(lanceFlamengo) {
		t.Error("Expected foreign lock to stay held")
	}
	if manager.IsHeld(geFutebol) {
		t.Error("Expected task to release its own locks")
	}
}

func TestAggregateTopicTaskKeepsPayloadWhenSectionsBusy(t *testing.T) {
	fetcher := &fakeFetcher{results: map[feed.SectionKey]source.Result{
		geFutebol:     {Found: 1, Items: []feed.RawItem{item("ge", "Gol do Flamengo", "https://ge.globo.com/a", "2025-05-01T12:00:00Z")}},
		lanceFlamengo: {},
		uolEsporte:    {},
	}}
	manager := locks.NewManager(time.Hour)
	topicRepo := &fakeTopicRepo{}
	runRepo := newFakeRunRepo()
	refresher := newTestRefresher(fetcher, manager, newFakeSectionRepo())

	if err := NewAggregateTopicTask(testTopic(), refresher, topicRepo, runRepo).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	stored := string(topicRepo.payloads["futebol"])
	processed, err := feed.UnmarshalProcessedTopic([]byte(stored))
	if err != nil || len(processed.Items) != 1 {
		t.Fatalf("Expected a stored payload with 1 item, got %v (err %v)", processed, err)
	}

	for _, key := range []feed.SectionKey{geFutebol, lanceFlamengo, uolEsporte} {
		if !manager.Acquire(key) {
			t.Fatalf("Expected to acquire %s", key)
		}
	}

	if err := NewAggregateTopicTask(testTopic(), refresher, topicRepo, runRepo).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := string(topicRepo.payloads["futebol"]); got != stored {
		t.Errorf("Expected payload to stay intact, got %s", got)
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("Expected no fetches while every section is busy, got %d total", len(fetcher.calls))
	}
	if status := runRepo.statuses[runRepo.started[1]]; status != database.RunStatusSkipped {
		t.Errorf("Expected run status '%s', got '%s'", database.RunStatusSkipped, status)
	}
}

func TestAggregateTopicTaskSaveFailure(t *testing.T) {
	fetcher := &fakeFetcher{results: map[feed.SectionKey]source.Result{
		geFutebol:     {},
		lanceFlamengo: {},
		uolEsporte:    {},
	}}
	runRepo := newFakeRunRepo()
	topicRepo := &fakeTopicRepo{saveErr: errors.New("disk full")}

	refresher := newTestRefresher(fetcher, locks.NewManager(time.Minute), newFakeSectionRepo())
	task := NewAggregateTopicTask(testTopic(), refresher, topicRepo, runRepo)

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected error when save fails")
	}

	runID := runRepo.started[0]
	if runRepo.statuses[runID] != database.RunStatusFailed {
		t.Errorf("Expected run status '%s', got '%s'", database.RunStatusFailed, runRepo.statuses[runID])
	}
}

func TestAggregateTopicTaskCancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{}
	refresher := newTestRefresher(fetcher, locks.NewManager(time.Minute), newFakeSectionRepo())
	task := NewAggregateTopicTask(testTopic(), refresher, &fakeTopicRepo{}, newFakeRunRepo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("Expected no fetches, got %d", len(fetcher.calls))
	}
}

func TestSyncSectionsTask(t *testing.T) {
	sources := map[string]*feed.SourceConfig{
		"ge": {Name: "GE", Sections: map[string]*feed.SectionConfig{
			"futebol": {Name: "Futebol", URL: "https://ge.globo.com/rss/futebol"},
		}},
		"lance": {Name: "Lance", Sections: map[string]*feed.SectionConfig{
			"flamengo": {Name: "Flamengo", URL: "https://lance.com.br/flamengo"},
		}},
	}
	sectionRepo := newFakeSectionRepo()
	articleRepo := newFakeArticleRepo()

	task := NewSyncSectionsTask(sources, sectionRepo, articleRepo)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := sectionRepo.upserts[geFutebol]; got != "GE - Futebol" {
		t.Errorf("Expected display name 'GE - Futebol', got '%s'", got)
	}
	if len(sectionRepo.kept) != 2 {
		t.Errorf("Expected 2 kept sections, got %d", len(sectionRepo.kept))
	}
	if len(articleRepo.kept) != 2 {
		t.Errorf("Expected articles of 2 sections to be kept, got %d", len(articleRepo.kept))
	}
}

type fakeTopics struct {
	topics map[string]*feed.TopicConfig
}

func (f *fakeTopics) GetTopic(name string) (*feed.TopicConfig, error) {
	topic, ok := f.topics[name]
	if !ok {
		return nil, fmt.Errorf("topic not found: %s", name)
	}
	return topic, nil
}

func (f *fakeTopics) GetEnabledTopics() map[string]*feed.TopicConfig {
	enabled := make(map[string]*feed.TopicConfig)
	for name, topic := range f.topics {
		if topic.IsEnabled() {
			enabled[name] = topic
		}
	}
	return enabled
}

func (f *fakeTopics) GetSources() map[string]*feed.SourceConfig {
	return nil
}

func newTestScheduler(topics TopicSource, fetcher SectionFetcher, topicRepo database.TopicRepository) *Scheduler {
	sectionRepo := newFakeSectionRepo()
	articleRepo := newFakeArticleRepo()
	refresher := NewSectionRefresher(fetcher, locks.NewManager(time.Minute), articleRepo, sectionRepo)
	return NewScheduler(topics, refresher, topicRepo, sectionRepo, articleRepo, newFakeRunRepo())
}

func TestSchedulerEnqueueTopic(t *testing.T) {
	setupTestConfig()

	disabled := false
	topics := &fakeTopics{topics: map[string]*feed.TopicConfig{
		"futebol": testTopic(),
		"volei":   {Name: "volei", Enabled: &disabled},
	}}

	scheduler := newTestScheduler(topics, &fakeFetcher{}, &fakeTopicRepo{})

	if err := scheduler.EnqueueTopic("futebol"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if len(scheduler.taskQueue) != 1 {
		t.Errorf("Expected 1 queued task, got %d", len(scheduler.taskQueue))
	}

	if err := scheduler.EnqueueTopic("volei"); !errors.Is(err, ErrTopicDisabled) {
		t.Errorf("Expected ErrTopicDisabled, got %v", err)
	}
	if err := scheduler.EnqueueTopic("basquete"); err == nil {
		t.Error("Expected error for unknown topic")
	}
}

func TestSchedulerQueueFull(t *testing.T) {
	setupTestConfig()

	topics := &fakeTopics{topics: map[string]*feed.TopicConfig{"futebol": testTopic()}}
	scheduler := newTestScheduler(topics, &fakeFetcher{}, &fakeTopicRepo{})

	for i := 0; i < cap(scheduler.taskQueue); i++ {
		if err := scheduler.EnqueueTopic("futebol"); err != nil {
			t.Fatalf("Expected no error at %d, got: %v", i, err)
		}
	}

	if err := scheduler.EnqueueTopic("futebol"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestSchedulerRunsStartupTasks(t *testing.T) {
	setupTestConfig()

	fetcher := &fakeFetcher{results: map[feed.SectionKey]source.Result{
		geFutebol:     {},
		lanceFlamengo: {},
		uolEsporte:    {},
	}}
	topicRepo := &fakeTopicRepo{}
	topics := &fakeTopics{topics: map[string]*feed.TopicConfig{"futebol": testTopic()}}

	scheduler := newTestScheduler(topics, fetcher, topicRepo)
	scheduler.Start()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		fetcher.mu.Lock()
		done := len(fetcher.calls) >= 3
		fetcher.mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	scheduler.Stop()

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if len(fetcher.calls) < 3 {
		t.Errorf("Expected startup aggregation to fetch 3 sections, got %d", len(fetcher.calls))
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
	}

	for _, test := range tests {
		if got := retryDelay(test.retryCount); got != test.expected {
			t.Errorf("Expected delay %v for retry %d, got %v", test.expected, test.retryCount, got)
		}
	}
}
