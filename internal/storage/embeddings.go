package storage

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAIClient builds the client the embedding service talks through.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// EmbeddingResult is the outcome of one embedding request.
type EmbeddingResult struct {
	Content   string
	Embedding []float32
	Error     error
}

type embeddingWork struct {
	content string
	result  chan<- EmbeddingResult
}

// EmbeddingService generates text embeddings through the OpenAI API with
// a worker pool and an in-memory cache keyed by content.
type EmbeddingService struct {
	cli        *openai.Client
	model      openai.EmbeddingModel
	numWorkers int
	workQueue  chan embeddingWork
	cache      sync.Map
	wg         sync.WaitGroup
}

// NewEmbeddingService starts numWorkers embedding workers.
func NewEmbeddingService(cli *openai.Client, model string, numWorkers int) *EmbeddingService {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	s := &EmbeddingService{
		cli:        cli,
		model:      openai.EmbeddingModel(model),
		numWorkers: numWorkers,
		workQueue:  make(chan embeddingWork, 100),
	}
	s.startWorkers()
	return s
}

func (s *EmbeddingService) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for work := range s.workQueue {
				if cached, ok := s.cache.Load(work.content); ok {
					if embedding, valid := cached.([]float32); valid {
						work.result <- EmbeddingResult{Content: work.content, Embedding: embedding}
						continue
					}
				}

				embedding, err := s.generate(context.Background(), work.content)
				if err == nil {
					s.cache.Store(work.content, embedding)
				}
				work.result <- EmbeddingResult{Content: work.content, Embedding: embedding, Error: err}
			}
		}()
	}
}

// GetEmbedding queues an embedding request and returns a channel that
// receives the single result.
func (s *EmbeddingService) GetEmbedding(content string) <-chan EmbeddingResult {
	resultChan := make(chan EmbeddingResult, 1)
	select {
	case s.workQueue <- embeddingWork{content: content, result: resultChan}:
	default:
		resultChan <- EmbeddingResult{
			Content: content,
			Error:   fmt.Errorf("embedding queue is full, try again later"),
		}
		close(resultChan)
	}
	return resultChan
}

// Embed generates one embedding synchronously, bypassing the queue.
func (s *EmbeddingService) Embed(ctx context.Context, content string) ([]float32, error) {
	if cached, ok := s.cache.Load(content); ok {
		if embedding, valid := cached.([]float32); valid {
			return embedding, nil
		}
	}
	embedding, err := s.generate(ctx, content)
	if err == nil {
		s.cache.Store(content, embedding)
	}
	return embedding, err
}

func (s *EmbeddingService) generate(ctx context.Context, content string) ([]float32, error) {
	resp, err := s.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: s.model,
		Input: []string{content},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// Close shuts the service down and waits for in-flight work.
func (s *EmbeddingService) Close() {
	if s.workQueue != nil {
		close(s.workQueue)
	}
	s.wg.Wait()
}
