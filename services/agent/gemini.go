package agent

import (
	"context"
	"fmt"
	"strings"

	"salonflow/models"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiDecider drives the Gemini API with a JSON-only instruction so every
// response is a single command object.
type GeminiDecider struct {
	model *genai.GenerativeModel
}

func NewGeminiDecider(ctx context.Context, apiKey, modelName string) (*GeminiDecider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	return &GeminiDecider{model: model}, nil
}

func (g *GeminiDecider) Decide(ctx context.Context, input DecisionInput) (*models.Command, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(input)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return ParseCommand(sb.String())
}

func buildPrompt(input DecisionInput) string {
	var sb strings.Builder

	sb.WriteString("You are the booking assistant of a beauty salon. ")
	if input.Salon != nil {
		fmt.Fprintf(&sb, "Salon: %s, %s, hours %s. ", input.Salon.Name, input.Salon.Address, input.Salon.Hours)
	}
	fmt.Fprintf(&sb, "Current time: %s.\n\n", input.Now.Format("Monday 2006-01-02 15:04"))

	sb.WriteString("Services:\n")
	for _, svc := range input.Services {
		fmt.Fprintf(&sb, "- %s: $%.0f, %d min\n", svc.Name, svc.Price, svc.DurationMinutes)
	}
	sb.WriteString("Providers:\n")
	for _, p := range input.Providers {
		fmt.Fprintf(&sb, "- %s (%s)\n", p.Name, strings.Join(p.Specialties, ", "))
	}

	fmt.Fprintf(&sb, "\nClient: %s (%s).\n", input.ClientName, input.SenderPhone)
	if input.Upcoming != nil {
		fmt.Fprintf(&sb, "Their next appointment: %s with provider %s, services %s.\n",
			input.Upcoming.Start.Format("2006-01-02 15:04"),
			input.Upcoming.ProviderID,
			strings.Join(input.Upcoming.Services, ", "))
	}

	if len(input.History) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, msg := range input.History {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	fmt.Fprintf(&sb, "\nClient message: %s\n\n", input.Turn)

	sb.WriteString(`Respond with exactly one JSON object and nothing else. The "action" field must be one of: ` +
		"list_services, list_providers, provider_schedule, check_availability, create_booking, " +
		"update_booking, cancel_booking, get_appointments, reply.\n" +
		`Fields: "text" (reply), "provider_name", "date" (YYYY-MM-DD), "time" (HH:MM), ` +
		`"services" (array of service names), "client_name", "notes", "reason".` + "\n" +
		"Use reply for greetings, questions and anything not covered by the other actions. " +
		"Answer in the client's language.\n")
	return sb.String()
}
