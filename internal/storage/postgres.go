package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
)

// embeddingDims matches the text-embedding-3-small output size.
const embeddingDims = 1536

// FrameSearchResult is one hit from a similarity search over stored
// frame descriptions.
type FrameSearchResult struct {
	VideoName   string
	FrameNumber int
	FramePath   string
	Description string
	Similarity  float64
}

// PostgresStore indexes frame analyses and summaries in PostgreSQL with
// pgvector embeddings over the descriptions. It is an optional sink;
// storage failures are the caller's to log, never fatal to a run.
type PostgresStore struct {
	pool       *pgxpool.Pool
	embeddings *EmbeddingService
	logger     *slog.Logger
}

// NewPostgresStore connects to connString and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string, embeddings *EmbeddingService, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, embeddings: embeddings, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// getOrCreateVideo returns the row id for a video, inserting it if new.
func (s *PostgresStore) getOrCreateVideo(ctx context.Context, videoID, title string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM videos WHERE source_id = $1",
		videoID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"INSERT INTO videos (source_id, title, created_at) VALUES ($1, $2, $3) RETURNING id",
		videoID, title, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}
	return id, nil
}

// StoreRecord persists one finalized processing record: the video row,
// every frame row, and each successful analysis with its embedding.
// Embeddings for all successful frames are requested through the worker
// pool up front so they generate concurrently while rows are inserted.
// Embedding failures degrade to a null embedding with a warning.
func (s *PostgresStore) StoreRecord(ctx context.Context, record models.VideoProcessingRecord) error {
	videoRowID, err := s.getOrCreateVideo(ctx, record.Source.ID, record.Source.Title)
	if err != nil {
		return err
	}

	pending := make(map[int]<-chan EmbeddingResult)
	for i, analysis := range record.FrameAnalyses {
		if analysis.Success {
			pending[i] = s.embeddings.GetEmbedding(analysis.Description)
		}
	}

	for i, analysis := range record.FrameAnalyses {
		var frameRowID int
		err := s.pool.QueryRow(ctx,
			`INSERT INTO frames
			(video_id, frame_number, frame_path, timestamp_seconds, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (video_id, frame_number) DO UPDATE SET frame_path = EXCLUDED.frame_path
			RETURNING id`,
			videoRowID, analysis.FrameOrdinal, analysis.FramePath, analysis.Timestamp, time.Now()).Scan(&frameRowID)
		if err != nil {
			return fmt.Errorf("failed to store frame information: %w", err)
		}

		if !analysis.Success {
			continue
		}

		var embedding *pgvector.Vector
		if result := <-pending[i]; result.Error != nil {
			s.logger.Warn("failed to generate embedding", "frame", analysis.FrameOrdinal, "error", result.Error)
		} else {
			v := pgvector.NewVector(result.Embedding)
			embedding = &v
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO analyses
			(frame_id, content, embedding, tokens_used, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			frameRowID, analysis.Description, embedding, analysis.TokensUsed, time.Now())
		if err != nil {
			return fmt.Errorf("failed to store analysis: %w", err)
		}
	}

	if record.Summary.Success {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO summaries
			(video_id, content, tokens_used, frames_considered, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			videoRowID, record.Summary.Text, record.Summary.TokensUsed, record.Summary.FramesConsidered, time.Now())
		if err != nil {
			return fmt.Errorf("failed to store summary: %w", err)
		}
	}

	return nil
}

// SearchSimilarFrames finds stored frames whose descriptions are nearest
// to the query text.
func (s *PostgresStore) SearchSimilarFrames(ctx context.Context, query string, limit int) ([]FrameSearchResult, error) {
	queryEmbedding, err := s.embeddings.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT v.title, f.frame_number, f.frame_path, a.content,
		1 - (a.embedding <=> $1) AS similarity
		FROM analyses a
		JOIN frames f ON a.frame_id = f.id
		JOIN videos v ON f.video_id = v.id
		WHERE a.embedding IS NOT NULL
		ORDER BY a.embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar frames: %w", err)
	}
	defer rows.Close()

	var results []FrameSearchResult
	for rows.Next() {
		var result FrameSearchResult
		if err := rows.Scan(&result.VideoName, &result.FrameNumber, &result.FramePath,
			&result.Description, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// InitSchema creates the pgvector extension, tables, and indexes.
func InitSchema(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            source_id VARCHAR(64) NOT NULL,
            title VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(source_id)
        );

        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            frame_number INTEGER NOT NULL,
            frame_path VARCHAR(255) NOT NULL,
            timestamp_seconds DOUBLE PRECISION NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(video_id, frame_number)
        );

        CREATE TABLE IF NOT EXISTS analyses (
            id SERIAL PRIMARY KEY,
            frame_id INTEGER REFERENCES frames(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            embedding vector(%d),
            tokens_used INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS summaries (
            id SERIAL PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            tokens_used INTEGER NOT NULL DEFAULT 0,
            frames_considered INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL
        );
    `, embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_video_id ON frames(video_id);
        CREATE INDEX IF NOT EXISTS idx_analyses_frame_id ON analyses(frame_id);
        CREATE INDEX IF NOT EXISTS idx_embedding_vector ON analyses USING ivfflat (embedding vector_l2_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}
	return nil
}
