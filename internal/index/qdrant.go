// Package index provides the durable vector store for photo records:
// deterministic dedup IDs, lazily created collection schema, and
// similarity search with face-name payload filtering.
package index

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/deepak/photofind/internal/monitor"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrSchemaMismatch reports that the collection already exists with a
// different vector dimensionality than the one being written. This is
// fatal: mixing embedding spaces would silently corrupt retrieval.
var ErrSchemaMismatch = errors.New("index: collection vector size differs from embedding dimensionality")

// ConnectionConfig holds configuration for the Qdrant connection.
type ConnectionConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // enables TLS automatically when set
	UseTLS     bool   // explicitly enable TLS without an API key
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to
// outgoing metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// PhotoIndex is the Qdrant-backed vector store for indexed photos.
type PhotoIndex struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	collection    string
}

// New connects to Qdrant. Supports both local instances (insecure) and
// hosted ones (TLS + API key).
func New(cfg *ConnectionConfig) (*PhotoIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &PhotoIndex{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		collection:    cfg.Collection,
	}, nil
}

// Close closes the gRPC connection.
func (x *PhotoIndex) Close() error {
	return x.conn.Close()
}

// EnsureCollection creates the collection sized to dim if it does not
// exist. An existing collection with a different vector size returns
// ErrSchemaMismatch.
func (x *PhotoIndex) EnsureCollection(ctx context.Context, dim int) error {
	info, err := x.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: x.collection,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(dim) {
			return fmt.Errorf("%w: collection %s has size %d, embedding has %d",
				ErrSchemaMismatch, x.collection, size, dim)
		}
		return nil
	}

	_, err = x.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func optionalUint32(v uint32) *uint32 {
	return &v
}

func optionalBool(v bool) *bool {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// Has reports whether a point with the given ID already exists. A missing
// collection counts as "not present" so dedup probes work before the
// first insert.
func (x *PhotoIndex) Has(ctx context.Context, pointID string) (bool, error) {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return false, fmt.Errorf("invalid point ID: %w", err)
	}

	resp, err := x.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: x.collection,
		Ids: []*pb.PointId{
			{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
		},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Collection not created yet.
			return false, nil
		}
		return false, fmt.Errorf("failed to check point: %w", err)
	}

	return len(resp.GetResult()) > 0, nil
}

// Upsert inserts or replaces one photo record.
func (x *PhotoIndex) Upsert(ctx context.Context, pointID string, vector []float32, payload *PhotoPayload) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: payloadToValues(payload),
		},
	}

	_, err = x.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// Search performs a similarity query. When names is non-empty, results are
// restricted to records whose faces payload contains at least one of the
// names (OR semantics); ranking within the restriction is by descending
// cosine similarity.
func (x *PhotoIndex) Search(ctx context.Context, vector []float32, names []string, limit int) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if len(names) > 0 {
		req.Filter = facesFilter(names)
	}

	resp, err := x.pointsClient.Search(ctx, req)
	if err != nil {
		// Searching before the first insert is legitimate: no collection
		// means no matches, not a failure.
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, scored := range resp.Result {
		results[i] = SearchResult{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}

	return results, nil
}

// facesFilter builds an OR filter over the faces payload field.
func facesFilter(names []string) *pb.Filter {
	return &pb.Filter{
		Should: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "faces",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keywords{
								Keywords: &pb.RepeatedStrings{Strings: names},
							},
						},
					},
				},
			},
		},
	}
}

// Scroll lists up to limit records without vector computation, for browse
// mode. A missing collection yields an empty list.
func (x *PhotoIndex) Scroll(ctx context.Context, limit int) ([]SearchResult, error) {
	resp, err := x.pointsClient.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: x.collection,
		Limit:          optionalUint32(uint32(limit)),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scroll: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, point := range resp.Result {
		results[i] = SearchResult{
			ID:      point.Id.GetUuid(),
			Payload: parsePayload(point.Payload),
		}
	}
	return results, nil
}

// Count returns the exact number of indexed records. A missing collection
// counts as zero.
func (x *PhotoIndex) Count(ctx context.Context) (uint64, error) {
	resp, err := x.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: x.collection,
		Exact:          optionalBool(true),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// Drop deletes the whole collection. Used by the clear command; per-record
// deletion is intentionally not part of the indexing pipeline.
func (x *PhotoIndex) Drop(ctx context.Context) error {
	_, err := x.collectClient.Delete(ctx, &pb.DeleteCollection{
		CollectionName: x.collection,
	})
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// perfToValue converts a perf summary into a nested payload value.
func perfToValue(perf map[string]monitor.StageStats) *pb.Value {
	fields := make(map[string]*pb.Value, len(perf))
	for stage, stats := range perf {
		fields[stage] = &pb.Value{
			Kind: &pb.Value_StructValue{
				StructValue: &pb.Struct{
					Fields: map[string]*pb.Value{
						"latency_sec":   {Kind: &pb.Value_DoubleValue{DoubleValue: stats.LatencySeconds}},
						"ram_change_mb": {Kind: &pb.Value_DoubleValue{DoubleValue: stats.RAMDeltaMB}},
					},
				},
			},
		}
	}
	return &pb.Value{
		Kind: &pb.Value_StructValue{
			StructValue: &pb.Struct{Fields: fields},
		},
	}
}

func valueToPerf(v *pb.Value) map[string]monitor.StageStats {
	outer := v.GetStructValue()
	if outer == nil {
		return nil
	}

	perf := make(map[string]monitor.StageStats, len(outer.GetFields()))
	for stage, stageVal := range outer.GetFields() {
		inner := stageVal.GetStructValue()
		if inner == nil {
			continue
		}
		stats := monitor.StageStats{}
		if lat, ok := inner.GetFields()["latency_sec"]; ok {
			stats.LatencySeconds = lat.GetDoubleValue()
		}
		if ram, ok := inner.GetFields()["ram_change_mb"]; ok {
			stats.RAMDeltaMB = ram.GetDoubleValue()
		}
		perf[stage] = stats
	}
	return perf
}
