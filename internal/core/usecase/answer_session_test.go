package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/rules"
)

// echoGenerator answers with the query it was given and yields mid-call so
// concurrent requests get a chance to interleave.
type echoGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *echoGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	time.Sleep(time.Millisecond)
	return "đáp: " + req.Query, nil
}

func TestAnswerSameSessionConcurrentRequestsKeepPairsTogether(t *testing.T) {
	const (
		requests   = 25
		maxHistory = 10
	)
	set := rules.Default()
	sessions := NewSessionManager(NewMetaMatcher(set, nil), SessionOptions{Timeout: time.Hour, MaxHistory: maxHistory})
	generator := &echoGenerator{}
	uc := NewAnswerUseCase(sessions, &searcherFake{}, nil, generator, set, PromptSet{}, nil, DefaultAnswerConfig())
	sessionID := sessions.GetOrCreate("shared").ID

	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			question := fmt.Sprintf("Gừng mọc ở vùng số %d?", i)
			res, err := uc.Answer(context.Background(), domain.AnswerRequest{Question: question, SessionID: sessionID})
			if err != nil {
				errs <- err
				return
			}
			if res.Answer != "đáp: "+question {
				errs <- fmt.Errorf("request %d got reply %q", i, res.Answer)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if generator.calls != requests {
		t.Fatalf("expected %d generations, got %d", requests, generator.calls)
	}
	if sessions.Count() != 1 {
		t.Fatalf("expected one shared session, got %d", sessions.Count())
	}

	turns := sessions.GetOrCreate(sessionID).Conversation().turns
	if want := 2 * min(requests, maxHistory); len(turns) != want {
		t.Fatalf("expected %d retained turns, got %d", want, len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		user, assistant := turns[i], turns[i+1]
		if user.Role != domain.RoleUser || assistant.Role != domain.RoleAssistant {
			t.Fatalf("turns %d and %d are not a user/assistant pair: %+v %+v", i, i+1, user, assistant)
		}
		if assistant.Text != "đáp: "+user.Text {
			t.Fatalf("turn %d answers %q but follows question %q", i+1, assistant.Text, user.Text)
		}
		if !strings.HasPrefix(user.Text, "Gừng mọc ở vùng số") {
			t.Fatalf("unexpected user turn %q", user.Text)
		}
	}
}
