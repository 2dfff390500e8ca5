package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubtasks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Suggestion
	}{
		{
			name:    "bare array",
			content: `[{"title":"Read","estimated_minutes":60},{"title":"Write","estimated_minutes":120}]`,
			want:    []Suggestion{{"Read", 60}, {"Write", 120}},
		},
		{
			name:    "json fenced block",
			content: "Aqui está:\n```json\n[{\"title\":\"Read\",\"estimated_minutes\":45}]\n```\nBoa sorte!",
			want:    []Suggestion{{"Read", 45}},
		},
		{
			name:    "plain fenced block",
			content: "```\n[{\"title\":\"Read\",\"estimated_minutes\":30}]\n```",
			want:    []Suggestion{{"Read", 30}},
		},
		{
			name:    "crlf fences",
			content: "```json\r\n[{\"title\":\"Read\",\"estimated_minutes\":30}]\r\n```",
			want:    []Suggestion{{"Read", 30}},
		},
		{
			name: "json fence wins over plain fence",
			content: "```\n[{\"title\":\"Wrong\",\"estimated_minutes\":1}]\n```\n" +
				"```json\n[{\"title\":\"Right\",\"estimated_minutes\":2}]\n```",
			want: []Suggestion{{"Right", 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubtasks(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSubtasks_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose", "Desculpe, não posso ajudar com isso."},
		{"object instead of array", `{"title":"Read","estimated_minutes":60}`},
		{"truncated json", "```json\n[{\"title\":\"Read\",\n```"},
		{"missing title", `[{"estimated_minutes":60}]`},
		{"negative minutes", `[{"title":"Read","estimated_minutes":-5}]`},
		{"empty content", ""},
		{"null", "null"},
		{"empty array", "[]"},
		{"fenced null", "```json\nnull\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubtasks(tt.content)
			assert.ErrorIs(t, err, ErrParse)
			assert.Nil(t, got)
		})
	}
}

func TestSuggestionMinutes(t *testing.T) {
	assert.Equal(t, 60, Suggestion{EstimatedMinutes: 60}.Minutes())
	assert.Equal(t, 46, Suggestion{EstimatedMinutes: 45.5}.Minutes())
	assert.Equal(t, 45, Suggestion{EstimatedMinutes: 45.4}.Minutes())
}

func TestUserPrompt(t *testing.T) {
	prompt := userPrompt(Request{TaskTitle: "Estudar", TaskDescription: "capítulos 3 e 4", AvailableHours: 2.5})

	assert.Contains(t, prompt, "Tarefa: Estudar")
	assert.Contains(t, prompt, "Descrição: capítulos 3 e 4")
	assert.Contains(t, prompt, "Tempo disponível: 2.5 horas (150 minutos)")

	prompt = userPrompt(Request{TaskTitle: "Estudar", AvailableHours: 1})
	assert.NotContains(t, prompt, "Descrição")
	assert.Contains(t, prompt, "1 horas (60 minutos)")
}
