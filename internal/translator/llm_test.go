package translator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MimeLyc/subtitle-studio/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChatClient struct {
	mock.Mock
}

func (m *mockChatClient) ChatCompletion(ctx context.Context, messages []llm.Message, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error) {
	args := m.Called(ctx, messages, opts)
	resp, _ := args.Get(0).(*llm.ChatResponse)
	return resp, args.Error(1)
}

func reply(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: content}}}}
}

func TestLLMTranslator_Translate(t *testing.T) {
	t.Parallel()

	client := &mockChatClient{}
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return len(msgs) == 1 &&
			msgs[0].Role == "user" &&
			msgs[0].Content == `{"lines":[{"index":1,"text":"Hello%%inline_breaker%%there"},{"index":2,"text":"Bye"}]}`
	}), mock.MatchedBy(func(opts *llm.ChatCompletionOptions) bool {
		return opts.Temperature == 0.2 && strings.Contains(opts.SystemPrompt, "from English to French")
	})).Return(reply(`[{"index":1,"text":"Salut%%inline_breaker%%toi"},{"index":2,"text":"Au revoir"}]`), nil).Once()

	tr := NewLLMTranslator(client)
	got, err := tr.Translate(context.Background(), []string{"Hello\nthere", " Bye "}, "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"Salut\ntoi", "Au revoir"}, got)
	client.AssertExpectations(t)
}

func TestLLMTranslator_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *llm.ChatResponse
		err     error
		wantErr string
	}{
		{name: "client error", err: errors.New("rate limited"), wantErr: "rate limited"},
		{name: "no choices", resp: &llm.ChatResponse{}, wantErr: "no choices"},
		{name: "garbage", resp: reply("sure, here you go"), wantErr: "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockChatClient{}
			client.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			_, err := NewLLMTranslator(client).Translate(context.Background(), []string{"a"}, "en", "fr")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLLMTranslator_EmptyInputSkipsCall(t *testing.T) {
	t.Parallel()

	client := &mockChatClient{}
	got, err := NewLLMTranslator(client).Translate(context.Background(), nil, "en", "fr")
	require.NoError(t, err)
	assert.Empty(t, got)
	client.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything, mock.Anything)
}
