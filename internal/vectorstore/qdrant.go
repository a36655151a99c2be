// Package vectorstore provides the outbound VectorStore adapter backed by
// Qdrant's native gRPC client.
package vectorstore

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	zconfig "github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

// parseQdrantURL splits a "host:port" (optionally "tls://host:port") config
// value into its gRPC dial parts.
func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	useTLS = strings.HasPrefix(raw, "tls://")
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "tls://"), "grpc://")

	host, portStr, splitErr := net.SplitHostPort(raw)
	if splitErr != nil {
		return "", 0, false, errkind.Wrap(errkind.Validation, "vectorstore.url must be host:port", splitErr)
	}
	port, convErr := strconv.Atoi(portStr)
	if convErr != nil {
		return "", 0, false, errkind.Wrap(errkind.Validation, "vectorstore.url port must be numeric", convErr)
	}
	return host, port, useTLS, nil
}

// collectionNamePattern ensures auto-created collections are still valid
// Qdrant identifiers.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return errkind.New(errkind.Validation, "collection name cannot be empty")
	}
	if !collectionNamePattern.MatchString(name) {
		return errkind.New(errkind.Validation, fmt.Sprintf("collection name must match ^[a-z0-9_]{1,64}$, got %q", name))
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// SearchHit is one TopK result.
type SearchHit struct {
	VectorID string
	Score    float32
	Metadata map[string]string
}

// Store implements the VectorStore adapter: Upsert and TopK over
// auto-created, cosine-metric collections.
type Store struct {
	client *qdrant.Client
	cfg    zconfig.VectorStoreConfig
	dim    uint64

	knownCollections sync.Map // collection name -> bool

	circuitBreaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

// NewStore dials Qdrant at cfg.URL ("host:port", optionally "tls://host:port")
// and returns a ready Store.
func NewStore(cfg zconfig.VectorStoreConfig, vectorDim int) (*Store, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50*1024*1024),
				grpc.MaxCallSendMsgSize(50*1024*1024),
			),
		},
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, errkind.Wrap(errkind.VectorStoreUnavailable, "dial qdrant", err)
	}

	store := &Store{
		client: client,
		cfg:    cfg,
		dim:    uint64(vectorDim),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, errkind.Wrap(errkind.VectorStoreUnavailable, "qdrant health check", err)
	}

	return store, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks reachability for the health endpoint's subsystem map.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return errkind.Wrap(errkind.VectorStoreUnavailable, "ping", err)
	}
	return nil
}

func (s *Store) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.cfg.RetryBackoff.Duration()
	maxRetries := s.cfg.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := op()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}
		if s.isCircuitOpen() {
			return errkind.New(errkind.VectorStoreUnavailable, name+": circuit breaker open")
		}
		if !IsTransientError(err) {
			return errkind.Wrap(errkind.VectorStoreUnavailable, name+" failed (permanent)", err)
		}
		s.recordFailure()
		if attempt == maxRetries {
			return errkind.Wrap(errkind.VectorStoreUnavailable, fmt.Sprintf("%s failed after %d retries", name, maxRetries), err)
		}
		select {
		case <-ctx.Done():
			return errkind.Wrap(errkind.Cancelled, name+" canceled", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *Store) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *Store) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *Store) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	if s.circuitBreaker.failures >= s.cfg.CircuitBreakerThreshold {
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// ensureCollection auto-creates collection on first use.
func (s *Store) ensureCollection(ctx context.Context, collection string) error {
	if _, ok := s.knownCollections.Load(collection); ok {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return errkind.Wrap(errkind.VectorStoreUnavailable, "check collection exists", err)
	}
	if !exists {
		err := s.retryOperation(ctx, "create collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.dim,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return err
		}
	}
	s.knownCollections.Store(collection, true)
	return nil
}

// Upsert writes or replaces one vector under vectorID in collection.
func (s *Store) Upsert(ctx context.Context, collection, vectorID string, vector []float32, metadata map[string]string) error {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	payload["vector_id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: vectorID}}
	for k, v := range metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+":"+vectorID)).String()),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	start := time.Now()
	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	RecordOperation("upsert", time.Since(start), err)
	return err
}

// TopK returns the k nearest neighbors of vector in collection.
func (s *Store) TopK(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	start := time.Now()
	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	RecordOperation("search", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		metadata := make(map[string]string, len(p.Payload))
		vectorID := ""
		for k, v := range p.Payload {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				if k == "vector_id" {
					vectorID = sv.StringValue
					continue
				}
				metadata[k] = sv.StringValue
			}
		}
		hits = append(hits, SearchHit{
			VectorID: vectorID,
			Score:    p.Score,
			Metadata: metadata,
		})
	}
	return hits, nil
}

// Exists reports whether vectorID has a point in collection, used by the
// orphan reconciliation scan to find Documents missing their Embedding.
func (s *Store) Exists(ctx context.Context, collection, vectorID string) (bool, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return false, err
	}

	pointID := qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+":"+vectorID)).String())

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "get", func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            []*qdrant.PointId{pointID},
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return false, err
	}
	return len(points) > 0, nil
}
