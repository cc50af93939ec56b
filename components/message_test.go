package components

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bububa/research-agents/schema"
)

func TestMessageToOpenAI(t *testing.T) {
	msg := NewMessage(UserRole, schema.String("test string schema"))
	var dist openai.ChatCompletionMessage
	msg.ToOpenAI(&dist)
	if dist.Role != UserRole {
		t.Errorf("role match error, expect:%s, got:%s", UserRole, dist.Role)
	}
	if dist.Content != "test string schema" {
		t.Errorf("content match error, expect:%s, got:%s", "test string schema", dist.Content)
	}
}

func TestMemoryOverflow(t *testing.T) {
	mem := NewMemory(2)
	mem.NewTurn()
	mem.NewMessage(UserRole, schema.String("first"))
	mem.NewMessage(AssistantRole, schema.String("second"))
	mem.NewMessage(UserRole, schema.String("third"))
	if count := mem.MessageCount(); count != 2 {
		t.Fatalf("expect 2 messages, got %d", count)
	}
	if got := mem.History()[0].StringifiedContent(); got != "second" {
		t.Errorf("expect oldest message dropped, head is %s", got)
	}
}

func TestMemoryDeleteTurn(t *testing.T) {
	mem := NewMemory(0)
	mem.NewTurn()
	turnID := mem.TurnID()
	mem.NewMessage(UserRole, schema.String("question"))
	mem.NewTurn()
	mem.NewMessage(UserRole, schema.String("another"))
	if err := mem.DeleteTurn(turnID); err != nil {
		t.Fatal(err)
	}
	if count := mem.MessageCount(); count != 1 {
		t.Errorf("expect 1 message after delete, got %d", count)
	}
	if err := mem.DeleteTurn("missing"); err == nil {
		t.Error("expect error for unknown turn ID")
	}
}
