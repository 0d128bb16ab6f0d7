package index

import (
	"github.com/deepak/photofind/internal/monitor"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

// PhotoPayload is the metadata stored alongside each vector.
type PhotoPayload struct {
	Path     string                        `json:"path"`
	OCRText  string                        `json:"ocr_text"`
	Faces    []string                      `json:"faces"`
	Document string                        `json:"document,omitempty"`
	Perf     map[string]monitor.StageStats `json:"perf,omitempty"`
}

// SearchResult is one record returned by Search or Scroll.
type SearchResult struct {
	ID      string
	Score   float32
	Payload PhotoPayload
}

// PointID derives the deterministic record ID for a canonical photo path.
// Same path always yields the same UUID, which is what makes re-indexing
// an idempotent upsert instead of a duplicate insert.
func PointID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
}

// payloadToValues converts a PhotoPayload to the qdrant payload format.
func payloadToValues(p *PhotoPayload) map[string]*pb.Value {
	facesList := make([]*pb.Value, len(p.Faces))
	for i, name := range p.Faces {
		facesList[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: name}}
	}

	values := map[string]*pb.Value{
		"path":     {Kind: &pb.Value_StringValue{StringValue: p.Path}},
		"ocr_text": {Kind: &pb.Value_StringValue{StringValue: p.OCRText}},
		"faces": {Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: facesList},
		}},
	}

	if p.Document != "" {
		values["document"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.Document}}
	}
	if len(p.Perf) > 0 {
		values["perf"] = perfToValue(p.Perf)
	}

	return values
}

// parsePayload converts qdrant payload values back to a PhotoPayload.
// Missing or mistyped fields degrade to zero values.
func parsePayload(payload map[string]*pb.Value) PhotoPayload {
	var p PhotoPayload

	if v, ok := payload["path"]; ok {
		p.Path = v.GetStringValue()
	}
	if v, ok := payload["ocr_text"]; ok {
		p.OCRText = v.GetStringValue()
	}
	if v, ok := payload["document"]; ok {
		p.Document = v.GetStringValue()
	}
	if v, ok := payload["faces"]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.GetValues() {
				if name := item.GetStringValue(); name != "" {
					p.Faces = append(p.Faces, name)
				}
			}
		}
	}
	if v, ok := payload["perf"]; ok {
		p.Perf = valueToPerf(v)
	}

	return p
}
