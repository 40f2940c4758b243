package api

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/sports-comb/app/cfg"
	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/tasks"
)

const (
	feedCacheControl = "public, max-age=900"

	defaultSectionFeedLimit = 30
	maxSectionFeedLimit     = 100
	maxQueryFilterLength    = 100
	sectionStaleAfter       = 5 * time.Minute
)

var queryFilterChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-|()]+`)

func NewHandler(configCache ConfigInterface, topicRepo database.TopicRepository,
	sectionRepo database.SectionRepository, articleRepo database.ArticleRepository,
	runRepo database.RunRepository, refresher SectionRefresher,
	lockInspector LockInspector, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		configCache: configCache,
		topicRepo:   topicRepo,
		sectionRepo: sectionRepo,
		articleRepo: articleRepo,
		runRepo:     runRepo,
		generator:   feed.NewGenerator(),
		refresher:   refresher,
		locks:       lockInspector,
		scheduler:   scheduler,
	}
}

// loadTopic resolves a configured topic and its last stored payload. It
// writes the error response itself and returns false when the caller should
// stop.
func (h *Handler) loadTopic(c *gin.Context) (*feed.TopicConfig, *feed.ProcessedTopic, bool) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return nil, nil, false
	}

	topicConfig, err := h.configCache.GetTopic(name)
	if err != nil {
		slog.Debug("Topic configuration not found", "topic", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return nil, nil, false
	}

	payload, err := h.topicRepo.GetProcessedTopic(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_processed_topic", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}

	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic has not been processed yet"})
		return nil, nil, false
	}

	processed, err := feed.UnmarshalProcessedTopic(payload)
	if err != nil {
		slog.Error("Stored payload is invalid", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored payload is invalid"})
		return nil, nil, false
	}

	return topicConfig, processed, true
}

func (h *Handler) GetTopic(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetTopic(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return
	}

	payload, err := h.topicRepo.GetProcessedTopic(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_processed_topic", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic has not been processed yet"})
		return
	}

	c.Header("Cache-Control", feedCacheControl)
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) GetTopicRSS(c *gin.Context) {
	h.renderFeed(c, "application/rss+xml; charset=utf-8", h.generator.Run)
}

func (h *Handler) GetTopicAtom(c *gin.Context) {
	h.renderFeed(c, "application/atom+xml; charset=utf-8", h.generator.RunAtom)
}

func (h *Handler) renderFeed(c *gin.Context, contentType string,
	render func(feed.Metadata, *feed.ProcessedTopic) (string, error)) {
	topicConfig, processed, ok := h.loadTopic(c)
	if !ok {
		return
	}

	body, err := render(h.metadata(topicConfig), processed)
	if err != nil {
		slog.Error("Feed generation error", "topic", topicConfig.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", feedCacheControl)
	c.Header("X-Feed-Items", strconv.Itoa(len(processed.Items)))
	c.Header("X-Feed-Name", topicConfig.Name)
	c.Header("X-Last-Updated", processed.UpdatedAt.Format(time.RFC3339))

	c.Data(http.StatusOK, contentType, []byte(body))
}

func (h *Handler) metadata(topicConfig *feed.TopicConfig) feed.Metadata {
	title := topicConfig.Title
	if title == "" {
		title = topicConfig.Name
	}

	baseURL := strings.TrimRight(cfg.Get().BaseUrl, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", cfg.Get().Port)
	}

	return feed.Metadata{
		Title:       title,
		Link:        fmt.Sprintf("%s/topics/%s", baseURL, topicConfig.Name),
		Description: topicConfig.Description,
		Language:    h.topicLanguage(topicConfig),
	}
}

// topicLanguage takes the language of the highest-priority source that
// declares one.
func (h *Handler) topicLanguage(topicConfig *feed.TopicConfig) string {
	sources := h.configCache.GetSources()

	for _, name := range topicConfig.PrioritySourceOrder {
		if src, ok := sources[name]; ok && src.Language != "" {
			return src.Language
		}
	}
	for _, key := range topicConfig.SectionKeys() {
		if src, ok := sources[key.Source]; ok && src.Language != "" {
			return src.Language
		}
	}
	return ""
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.Get().Version,
	}

	health["loaded_topics"] = h.configCache.GetTopicCount()

	if count, err := h.topicRepo.GetProcessedTopicCount(); err == nil {
		health["processed_topics"] = count
	} else {
		health["status"] = "degraded"
		slog.Warn("Health check database error", "error", err)
	}

	if sections, err := h.sectionRepo.GetSections(); err == nil {
		health["sections"] = len(sections)
	}

	if count, err := h.articleRepo.GetArticleCount(); err == nil {
		health["articles"] = count
	}

	refreshing := make([]string, 0)
	for key := range h.locks.Held() {
		refreshing = append(refreshing, key.String())
	}
	sort.Strings(refreshing)
	health["refreshing_sections"] = refreshing

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListTopics(c *gin.Context) {
	stored := make(map[string]database.ProcessedTopicInfo)
	if infos, err := h.topicRepo.ListProcessedTopics(); err == nil {
		for _, info := range infos {
			stored[info.Topic] = info
		}
	} else {
		slog.Error("Database error", "operation", "list_processed_topics", "error", err)
	}

	configs := h.configCache.GetTopics()
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	topics := make([]map[string]interface{}, 0, len(configs))
	for _, name := range names {
		topicConfig := configs[name]

		sections := make([]string, 0)
		for _, key := range topicConfig.SectionKeys() {
			sections = append(sections, key.String())
		}

		topicInfo := map[string]interface{}{
			"name":                  name,
			"title":                 topicConfig.Title,
			"enabled":               topicConfig.IsEnabled(),
			"priority_source_order": topicConfig.PrioritySourceOrder,
			"sections":              sections,
			"max_items":             topicConfig.MaxItems,
		}

		if info, ok := stored[name]; ok {
			topicInfo["updated_at"] = info.UpdatedAt
			topicInfo["payload_size"] = info.PayloadSize
		}

		if runs, err := h.runRepo.GetRecentRuns(name, 1); err == nil && len(runs) > 0 {
			topicInfo["last_run"] = runJSON(runs[0])
		}

		topics = append(topics, topicInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"topics": topics,
		"total":  len(topics),
	})
}

func (h *Handler) APIGetTopicRuns(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.configCache.GetTopic(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	runs, err := h.runRepo.GetRecentRuns(name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_runs", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		result = append(result, runJSON(run))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"topic": name,
		"runs":  result,
	})
}

func runJSON(run database.AggregationRun) map[string]interface{} {
	return map[string]interface{}{
		"id":          run.ID,
		"status":      run.Status,
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
		"item_count":  run.ItemCount,
		"error":       run.Error,
	}
}

func (h *Handler) APIListSections(c *gin.Context) {
	sections, err := h.sectionRepo.GetSections()
	if err != nil {
		slog.Error("Database error", "operation", "get_sections", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	held := h.locks.Held()

	result := make([]map[string]interface{}, 0, len(sections))
	for _, section := range sections {
		key := feed.SectionKey{Source: section.Source, Section: section.Section}

		info := map[string]interface{}{
			"source":            section.Source,
			"section":           section.Section,
			"name":              section.DisplayName,
			"url":               section.URL,
			"last_refreshed_at": section.LastRefreshedAt,
			"last_found_count":  section.LastFoundCount,
			"last_added_count":  section.LastAddedCount,
			"last_error":        section.LastError,
		}
		if acquiredAt, ok := held[key]; ok {
			info["refreshing_since"] = acquiredAt
		}

		result = append(result, info)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sections": result,
		"total":    len(result),
	})
}

func (h *Handler) APIRefreshTopic(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing topic name parameter"})
		return
	}

	if _, err := h.configCache.GetTopic(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic configuration not found"})
		return
	}

	if err := h.scheduler.EnqueueTopic(name); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, tasks.ErrTopicDisabled):
			status = http.StatusConflict
		case errors.Is(err, tasks.ErrQueueFull):
			status = http.StatusServiceUnavailable
		}

		slog.Error("Error enqueueing aggregation task", "topic", name, "error", err)
		c.JSON(status, gin.H{
			"error":   "Failed to enqueue aggregation task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Aggregation task enqueued",
		"topic":   name,
	})
}

// GetSectionFeed serves the stored articles of one (source, section) as RSS
// or Atom. The section is refreshed first when it has never been fetched,
// holds no articles, is older than five minutes or refresh=1 is passed. A
// refresh already running elsewhere is not waited for.
func (h *Handler) GetSectionFeed(c *gin.Context) {
	sourceName, sectionName, format := c.Param("source"), c.Param("section"), c.Param("format")

	var contentType string
	var render func(feed.Metadata, *feed.ProcessedTopic) (string, error)
	switch format {
	case "rss":
		contentType, render = "application/rss+xml; charset=utf-8", h.generator.Run
	case "atom":
		contentType, render = "application/atom+xml; charset=utf-8", h.generator.RunAtom
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Format must be rss or atom"})
		return
	}

	src, err := h.configCache.GetSource(sourceName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	section, ok := src.Sections[sectionName]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Section not found"})
		return
	}
	key := feed.SectionKey{Source: sourceName, Section: sectionName}

	limit := defaultSectionFeedLimit
	if parsed, err := strconv.Atoi(c.Query("limit")); err == nil && parsed > 0 {
		limit = min(parsed, maxSectionFeedLimit)
	}
	query := database.ArticleQuery{
		Limit:          limit,
		Terms:          parseQueryFilter(c.Query("q")),
		ExcludeAuthors: section.Filters.ExcludeAuthors,
	}

	articles, err := h.articleRepo.GetRecentArticles(key, query)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_articles", "section", key.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	empty := len(articles) == 0 && len(query.Terms) == 0
	if c.Query("refresh") == "1" || empty || h.sectionStale(key) {
		outcome := h.refresher.Refresh(c.Request.Context(), key, 0)
		if !outcome.Skipped && outcome.Result.OK() {
			if articles, err = h.articleRepo.GetRecentArticles(key, query); err != nil {
				slog.Error("Database error", "operation", "get_recent_articles", "section", key.String(), "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
				return
			}
		}
	}

	topic := &feed.ProcessedTopic{
		Topic:     key.String(),
		UpdatedAt: time.Now().UTC(),
		Items:     make([]feed.OutputItem, 0, len(articles)),
	}
	for _, article := range articles {
		topic.Items = append(topic.Items, articleItem(article, sectionName))
	}

	meta := feed.Metadata{
		Title:       fmt.Sprintf("%s - %s", cmp.Or(src.Name, sourceName), cmp.Or(section.Name, sectionName)),
		Link:        section.URL,
		Description: section.Description,
		Language:    src.Language,
		FeedPath:    fmt.Sprintf("/feeds/%s/%s", sourceName, sectionName),
	}

	body, err := render(meta, topic)
	if err != nil {
		slog.Error("Feed generation error", "section", key.String(), "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", feedCacheControl)
	c.Header("X-Feed-Items", strconv.Itoa(len(topic.Items)))
	c.Header("X-Feed-Name", key.String())

	c.Data(http.StatusOK, contentType, []byte(body))
}

func (h *Handler) sectionStale(key feed.SectionKey) bool {
	section, err := h.sectionRepo.GetSection(key)
	if err != nil {
		slog.Warn("Failed to load section stats", "section", key.String(), "error", err)
		return false
	}
	if section == nil || section.LastRefreshedAt == nil {
		return true
	}
	return time.Since(*section.LastRefreshedAt) > sectionStaleAfter
}

// parseQueryFilter turns q into search terms. Alternatives are separated by
// '|'; parentheses are accepted and ignored.
func parseQueryFilter(raw string) []string {
	cleaned := queryFilterChars.ReplaceAllString(raw, "")
	if runes := []rune(cleaned); len(runes) > maxQueryFilterLength {
		cleaned = string(runes[:maxQueryFilterLength])
	}
	cleaned = strings.NewReplacer("(", " ", ")", " ").Replace(cleaned)

	var terms []string
	for _, part := range strings.Split(cleaned, "|") {
		if term := strings.Join(strings.Fields(part), " "); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func articleItem(article database.Article, sectionName string) feed.OutputItem {
	published := article.ScrapedAt
	if article.PublishedAt != nil {
		published = *article.PublishedAt
	}

	item := feed.OutputItem{
		Title:           article.Title,
		Link:            article.URL,
		PubDate:         feed.FormatDate(published),
		Summary:         article.Summary,
		Source:          article.Source,
		PrimaryCategory: sectionName,
		Categories:      article.Categories,
		MergedFrom:      []feed.MergedRef{},
	}
	if article.Image != "" {
		image := article.Image
		item.Image = &image
	}
	if article.Author != "" {
		author := article.Author
		item.Author = &author
	}
	return item
}
