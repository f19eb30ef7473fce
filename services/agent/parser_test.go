package agent

import (
	"errors"
	"testing"

	"salonflow/models"
)

func TestParseCommandPlainJSON(t *testing.T) {
	cmd, err := ParseCommand(`{"action":"create_booking","provider_name":"Lucia","date":"2026-09-01","time":"10:00","services":["corte","tinte"],"client_name":"Ana"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Kind != models.CommandCreateBooking {
		t.Fatalf("kind = %q", cmd.Kind)
	}
	if cmd.ProviderName != "Lucia" || cmd.Date != "2026-09-01" || cmd.Time != "10:00" {
		t.Fatalf("fields = %+v", cmd)
	}
	if len(cmd.Services) != 2 {
		t.Fatalf("services = %v", cmd.Services)
	}
}

func TestParseCommandStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"action\":\"reply\",\"text\":\"Hola, ¿en qué te ayudo?\"}\n```"
	cmd, err := ParseCommand(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Kind != models.CommandReply {
		t.Fatalf("kind = %q", cmd.Kind)
	}
	if cmd.Text != "Hola, ¿en qué te ayudo?" {
		t.Fatalf("text = %q", cmd.Text)
	}
}

func TestParseCommandRejectsUnknownAction(t *testing.T) {
	_, err := ParseCommand(`{"action":"drop_database"}`)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
}

func TestParseCommandRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseCommand("quiero una cita"); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}

func TestParseCommandRejectsEmptyReply(t *testing.T) {
	if _, err := ParseCommand(`{"action":"reply","text":"  "}`); err == nil {
		t.Fatal("expected error for empty reply text")
	}
}
