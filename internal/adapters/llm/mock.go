package llm

import (
	"context"
	"fmt"

	"github.com/quietpage/quietpage/internal/domain"
)

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GenerateReply(ctx context.Context, req domain.ReplyRequest) (string, error) {
	if len(req.SelectedTopics) > 0 {
		return fmt.Sprintf("You said %q. Let's look at that through %q. What part feels heaviest right now?", req.Message, req.SelectedTopics[0]), nil
	}
	return fmt.Sprintf("You said %q. Tell me a bit more about how that feels.", req.Message), nil
}
