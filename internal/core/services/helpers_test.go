package services

import (
	"testing"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/timeline-core/internal/normalisers"
	"github.com/custodia-labs/timeline-core/internal/postprocessors"
	"github.com/custodia-labs/timeline-core/internal/runtime"
)

const testOwner = "owner-1"

// testFixture wires every stage against shared in-memory mocks
type testFixture struct {
	source     *mocks.MockFileSource
	refs       *mocks.MockFileRefStore
	states     *mocks.MockIndexStateStore
	artifacts  *mocks.MockArtifactStore
	embeddings *mocks.MockEmbeddingStore
	usageStore *mocks.MockUsageStore
	chats      *mocks.MockChatStore
	creds      *mocks.MockCredentialStore
	embedder   *mocks.MockEmbeddingService
	llm        *mocks.MockLLMService
	services   *runtime.Services
	ledger     *UsageLedger
	now        time.Time
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	refs := mocks.NewMockFileRefStore()
	f := &testFixture{
		source:     mocks.NewMockFileSource(),
		refs:       refs,
		states:     mocks.NewMockIndexStateStore(),
		artifacts:  mocks.NewMockArtifactStore(refs),
		embeddings: mocks.NewMockEmbeddingStore(refs),
		usageStore: mocks.NewMockUsageStore(),
		chats:      mocks.NewMockChatStore(),
		creds:      mocks.NewMockCredentialStore(),
		embedder:   mocks.NewMockEmbeddingService(),
		llm:        mocks.NewMockLLMService("Alpha is described in [ref:0]."),
		now:        time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	f.services = runtime.NewServices(domain.NewRuntimeConfig("postgres"))
	f.services.SetEmbeddingService(f.embedder)
	f.services.SetLLMService(f.llm)
	f.ledger = f.newLedger(domain.DefaultQuotaLimits())
	return f
}

func (f *testFixture) clock() time.Time {
	return f.now
}

func (f *testFixture) newLedger(limits domain.QuotaLimits) *UsageLedger {
	return NewUsageLedger(UsageLedgerConfig{
		Store:  f.usageStore,
		Limits: limits,
		Now:    f.clock,
	})
}

func (f *testFixture) indexer(maxFiles int, maxBytes int64) *Indexer {
	return NewIndexer(IndexerConfig{
		Source:   f.source,
		Refs:     f.refs,
		States:   f.states,
		MaxFiles: maxFiles,
		MaxBytes: maxBytes,
		Now:      f.clock,
	})
}

func (f *testFixture) ingestor(chunkChars, overlap int, maxBytes int64) *Ingestor {
	return NewIngestor(IngestorConfig{
		Source:      f.source,
		Refs:        f.refs,
		Artifacts:   f.artifacts,
		Normalisers: normalisers.DefaultRegistry(),
		Chunker: postprocessors.NewChunker(postprocessors.ChunkConfig{
			MaxChars:     chunkChars,
			OverlapChars: overlap,
		}),
		MaxBytes: maxBytes,
		Now:      f.clock,
	})
}

func (f *testFixture) embeddingPipeline() *EmbeddingPipeline {
	return NewEmbeddingPipeline(EmbeddingPipelineConfig{
		Artifacts:  f.artifacts,
		Embeddings: f.embeddings,
		Usage:      f.ledger,
		Services:   f.services,
		Now:        f.clock,
	})
}

func (f *testFixture) search() *SearchService {
	return NewSearchService(f.embeddings, f.ledger, f.services, nil)
}

func (f *testFixture) chat() *ChatService {
	return NewChatService(ChatServiceConfig{
		Store:      f.chats,
		Embeddings: f.embeddings,
		Retriever:  f.search(),
		Answers:    NewAnswerGenerator(f.services, nil),
		Usage:      f.ledger,
		Now:        f.clock,
	})
}

// addDoc lists a plain-text file with the given text
func (f *testFixture) addDoc(id, name, text string, modified time.Time) {
	size := int64(len(text))
	f.source.AddFile(&domain.RemoteFile{
		ID:           id,
		Name:         name,
		MimeType:     domain.MimePlainText,
		ModifiedTime: &modified,
		SizeBytes:    &size,
	})
	f.source.SetText(id, text)
}

func int64Ptr(v int64) *int64 {
	return &v
}
