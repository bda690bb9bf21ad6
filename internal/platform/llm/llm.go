// Package llm produces an optional second opinion on job/profile fit. The
// engine works entirely without it; when a Gemini key is configured the
// insight adjusts the heuristic score and attaches a short rationale.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"autoapply/internal/config"
	"autoapply/internal/core/jobs"
	"autoapply/internal/logger"
)

type Service struct {
	chatModel    model.BaseChatModel
	chatTemplate prompt.ChatTemplate
	log          *logger.Logger
}

// New returns (nil, nil) when no API key is configured; callers treat a
// nil service as "heuristic only".
func New(cfg *config.Config) (*Service, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	if !strings.EqualFold(cfg.LLMProvider, "gemini") {
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMProvider)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	chatModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  cfg.DefaultLLMModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		chatTemplate: insightTemplate(),
		log:          logger.New("LLM"),
	}, nil
}

func insightTemplate() prompt.ChatTemplate {
	system := schema.SystemMessage(`You assess how well a candidate fits a job posting.

Return ONLY a JSON object, no markdown, in this exact shape:
{"adjustment": <number between -20 and 20>, "rationale": "<one sentence>"}

The adjustment refines an existing keyword-based score: positive when the
posting fits the candidate better than keywords suggest, negative when it
fits worse. Be conservative; 0 is a fine answer.`)

	user := schema.UserMessage(`CANDIDATE SKILLS: {skills}
CANDIDATE EXPERIENCE: {experience}

JOB TITLE: {title}
JOB COMPANY: {company}
JOB DESCRIPTION:
{description}`)

	return prompt.FromMessages(schema.FString, system, user)
}

type insight struct {
	Adjustment float64 `json:"adjustment"`
	Rationale  string  `json:"rationale"`
}

// MatchInsight asks the model for a score adjustment on one job.
func (s *Service) MatchInsight(ctx context.Context, job jobs.ScrapedJob, user jobs.User) (float64, string, error) {
	desc := job.Description
	if len(desc) > 8000 {
		desc = desc[:8000]
	}
	messages, err := s.chatTemplate.Format(ctx, map[string]any{
		"skills":      strings.Join(user.Skills, ", "),
		"experience":  user.Experience,
		"title":       job.Title,
		"company":     job.Company,
		"description": desc,
	})
	if err != nil {
		return 0, "", fmt.Errorf("format insight prompt: %w", err)
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return 0, "", fmt.Errorf("llm generation: %w", err)
	}

	parsed, err := parseInsight(response.Content)
	if err != nil {
		s.log.LogWarnf("unparseable insight for job %s: %v", job.ID, err)
		return 0, "", err
	}
	return parsed.Adjustment, parsed.Rationale, nil
}

func parseInsight(content string) (*insight, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var out insight
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON insight: %w", err)
	}
	if out.Adjustment > 20 {
		out.Adjustment = 20
	}
	if out.Adjustment < -20 {
		out.Adjustment = -20
	}
	return &out, nil
}
