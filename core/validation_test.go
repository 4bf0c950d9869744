package core

import (
	"errors"
	"testing"
)

func validConversation() *ParsedConversation {
	return &ParsedConversation{
		Source:     SourceDeepSeek,
		ExternalID: "c1",
		Title:      "Trip planning",
		Messages: []ParsedMessage{
			{Role: RoleUser, Content: "Plan a trip to Kyoto", MessageIndex: 0},
			{Role: RoleAssistant, Content: "Here is an itinerary...", MessageIndex: 1},
		},
	}
}

func TestValidateConversation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ParsedConversation) *ParsedConversation
		wantErr error
	}{
		{
			name:    "valid conversation",
			mutate:  func(c *ParsedConversation) *ParsedConversation { return c },
			wantErr: nil,
		},
		{
			name:    "nil conversation",
			mutate:  func(c *ParsedConversation) *ParsedConversation { return nil },
			wantErr: ErrInvalidConversation,
		},
		{
			name: "unknown source",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.Source = "BARD"
				return c
			},
			wantErr: ErrUnknownSource,
		},
		{
			name: "missing external id",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.ExternalID = ""
				return c
			},
			wantErr: ErrMissingExternalID,
		},
		{
			name: "no messages",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.Messages = nil
				return c
			},
			wantErr: ErrNoMessages,
		},
		{
			name: "blank content",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.Messages[1].Content = "   "
				return c
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "invalid role",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.Messages[0].Role = "tool"
				return c
			},
			wantErr: ErrInvalidRole,
		},
		{
			name: "gap in message indexes",
			mutate: func(c *ParsedConversation) *ParsedConversation {
				c.Messages[1].MessageIndex = 3
				return c
			},
			wantErr: ErrNonContiguousIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversation(tt.mutate(validConversation()))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateConversation() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateConversation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input   string
		want    Source
		wantErr bool
	}{
		{"CHATGPT", SourceChatGPT, false},
		{"claude", SourceClaude, false},
		{" DeepSeek ", SourceDeepSeek, false},
		{"gemini", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSource) {
					t.Errorf("ParseSource(%q) error = %v, want ErrUnknownSource", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSource(%q) unexpected error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSource(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateChunkRecord(t *testing.T) {
	base := func() *ChunkRecord {
		return &ChunkRecord{
			OrganizationID: "org",
			EntityType:     EntityTypeConversation,
			EntityID:       "abc",
			ChunkIndex:     0,
			TotalChunks:    1,
			Content:        "hello",
		}
	}

	if err := ValidateChunkRecord(base()); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	r := base()
	r.OrganizationID = ""
	if !errors.Is(ValidateChunkRecord(r), ErrMissingOrganization) {
		t.Error("expected ErrMissingOrganization")
	}

	r = base()
	r.EntityID = ""
	if !errors.Is(ValidateChunkRecord(r), ErrMissingEntity) {
		t.Error("expected ErrMissingEntity")
	}

	r = base()
	r.Content = ""
	if !errors.Is(ValidateChunkRecord(r), ErrEmptyContent) {
		t.Error("expected ErrEmptyContent")
	}

	r = base()
	r.ChunkIndex = 1
	if !errors.Is(ValidateChunkRecord(r), ErrInvalidChunkRecord) {
		t.Error("expected out of range index to be rejected")
	}

	if !errors.Is(ValidateChunkRecord(nil), ErrInvalidChunkRecord) {
		t.Error("expected nil record to be rejected")
	}
}
