package graphstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original node id in the point payload, since
// Qdrant only accepts UUIDs or positive integers as point IDs.
const payloadIDField = "_node_id"

// kindField distinguishes Concept/Chunk/Claim/Theme embeddings sharing one
// collection, so a single VectorIndex backs all of Stage 2's vector recall
// and Stage 7's theme/chunk/claim recall.
const kindField = "_kind"

// VectorIndex wraps a Qdrant collection holding Concept, Chunk, Claim and
// Theme embeddings side by side, distinguished by payload kind.
type VectorIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewVectorIndex connects to Qdrant and ensures the collection exists.
func NewVectorIndex(dsn, collection string, dimension int, metric string) (*VectorIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	vi := &VectorIndex{client: client, collection: collection, dimension: dimension}
	if err := vi.ensureCollection(context.Background(), metric); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return vi, nil
}

func (v *VectorIndex) ensureCollection(ctx context.Context, metric string) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	distance := qdrant.Distance_Cosine
	switch strings.ToLower(metric) {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "dot", "ip":
		distance = qdrant.Distance_Dot
	}
	return v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(v.dimension),
			Distance: distance,
		}),
	})
}

func pointID(nodeID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(nodeID)).String())
}

func (v *VectorIndex) upsert(ctx context.Context, nodeID, kind string, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      pointID(nodeID),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{payloadIDField: nodeID, kindField: kind}),
	}
	_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: v.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	return err
}

// UpsertConcept indexes a Concept embedding.
func (v *VectorIndex) UpsertConcept(ctx context.Context, conceptID string, embedding []float32) error {
	return v.upsert(ctx, conceptID, "concept", embedding)
}

// UpsertChunk indexes a Chunk embedding.
func (v *VectorIndex) UpsertChunk(ctx context.Context, chunkID string, embedding []float32) error {
	return v.upsert(ctx, chunkID, "chunk", embedding)
}

// UpsertClaim indexes a Claim embedding.
func (v *VectorIndex) UpsertClaim(ctx context.Context, claimID string, embedding []float32) error {
	return v.upsert(ctx, claimID, "claim", embedding)
}

// UpsertTheme indexes a Theme summary embedding.
func (v *VectorIndex) UpsertTheme(ctx context.Context, themeID string, embedding []float32) error {
	return v.upsert(ctx, themeID, "theme", embedding)
}

// Search returns the top-K node ids of the given kind by cosine similarity
// to embedding.
func (v *VectorIndex) Search(ctx context.Context, kind string, embedding []float32, topK int) ([]string, error) {
	limit := uint64(topK)
	result, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(kindField, kind)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(result))
	for _, p := range result {
		if v, ok := p.Payload[payloadIDField]; ok {
			out = append(out, v.GetStringValue())
		}
	}
	return out, nil
}
