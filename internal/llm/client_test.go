package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockOpenAIClient 模拟 OpenAI 客户端
type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

// newTestClient 创建用于测试的客户端，注入 mock
func newTestClient(mockClient openAIClientInterface) *Client {
	return &Client{
		config:       &config.LLM{Model: "gemma:2b"},
		openaiClient: mockClient,
	}
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "gemma:2b" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == openai.ChatMessageRoleUser &&
			req.Messages[0].Content == "classify this" &&
			!req.Stream
	})).Return(reply("  Hostel \n"), nil)

	client := newTestClient(mockAPI)
	got, err := client.Complete(context.Background(), "classify this", time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "Hostel", got)
	mockAPI.AssertExpectations(t)
}

func TestComplete_SetsDeadline(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 2*time.Second
	}), mock.Anything).Return(reply("ok"), nil)

	client := newTestClient(mockAPI)
	_, err := client.Complete(context.Background(), "p", 2*time.Second)
	assert.NoError(t, err)
	mockAPI.AssertExpectations(t)
}

func TestComplete_RequiresTimeout(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	client := newTestClient(mockAPI)

	_, err := client.Complete(context.Background(), "p", 0)
	assert.Error(t, err)
	mockAPI.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestComplete_APIError(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("status 500"))

	client := newTestClient(mockAPI)
	_, err := client.Complete(context.Background(), "p", time.Second)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "调用 LLM API 失败")
}

func TestComplete_EmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
	}{
		{"无 choices", openai.ChatCompletionResponse{}},
		{"内容为空白", reply("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(mockOpenAIClient)
			mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(tt.resp, nil)

			client := newTestClient(mockAPI)
			_, err := client.Complete(context.Background(), "p", time.Second)
			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"matched":false}`, StripCodeFence("```json\n{\"matched\":false}\n```"))
	assert.Equal(t, `{"matched":false}`, StripCodeFence("```\n{\"matched\":false}```"))
	assert.Equal(t, "Hostel", StripCodeFence(" Hostel "))
}
