package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/sports-comb/app/cfg"
	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var (
	ErrQueueFull     = errors.New("task queue is full")
	ErrTopicDisabled = errors.New("topic is disabled")
)

const taskTimeout = 5 * time.Minute

type Scheduler struct {
	topics      TopicSource
	refresher   *SectionRefresher
	topicRepo   database.TopicRepository
	sectionRepo database.SectionRepository
	articleRepo database.ArticleRepository
	runRepo     database.RunRepository
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(topics TopicSource, refresher *SectionRefresher,
	topicRepo database.TopicRepository, sectionRepo database.SectionRepository,
	articleRepo database.ArticleRepository, runRepo database.RunRepository) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		topics:      topics,
		refresher:   refresher,
		topicRepo:   topicRepo,
		sectionRepo: sectionRepo,
		articleRepo: articleRepo,
		runRepo:     runRepo,
		interval:    cfg.SchedulerTick(),
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTopics()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueTopic queues an immediate aggregation of a single topic.
func (s *Scheduler) EnqueueTopic(name string) error {
	topic, err := s.topics.GetTopic(name)
	if err != nil {
		return err
	}
	if !topic.IsEnabled() {
		return fmt.Errorf("%w: %s", ErrTopicDisabled, name)
	}

	return s.EnqueueTask(s.newAggregateTask(topic))
}

func (s *Scheduler) newAggregateTask(topic *feed.TopicConfig) *AggregateTopicTask {
	return NewAggregateTopicTask(topic, s.refresher, s.topicRepo, s.runRepo)
}

func (s *Scheduler) enqueueStartupTasks() {
	syncTask := NewSyncSectionsTask(s.topics.GetSources(), s.sectionRepo, s.articleRepo)
	if err := s.EnqueueTask(syncTask); err != nil {
		slog.Warn("Failed to enqueue SyncSectionsTask", "error", err)
	}

	s.enqueueTopics()
}

func (s *Scheduler) enqueueTopics() {
	topics := s.topics.GetEnabledTopics()
	if len(topics) == 0 {
		slog.Debug("No enabled topic configurations found")
		return
	}

	slog.Debug("Scheduling topic aggregation", "count", len(topics))

	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.EnqueueTask(s.newAggregateTask(topics[name])); err != nil {
			slog.Warn("Failed to enqueue AggregateTopicTask", "topic", name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}

// retryDelay doubles from one second and caps at thirty.
func retryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
