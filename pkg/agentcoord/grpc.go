package agentcoord

import (
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/google/uuid"
)

// WorkloadUpdate is streamed to subscribed agent runtimes whenever
// AdjustWorkload changes an agent's current_workload (SPEC_FULL.md §3's
// wiring for google.golang.org/grpc beyond the teacher's OTLP-only usage).
type WorkloadUpdate struct {
	ProjectID       string `json:"project_id"`
	AgentID         string `json:"agent_id"`
	CurrentWorkload int    `json:"current_workload"`
	MaxConcurrent   int    `json:"max_concurrent"`
}

// jsonCodec lets the workload-push service skip a protoc code-generation
// step: google.golang.org/grpc accepts any registered encoding.Codec, and a
// plain JSON one is enough for an internal, same-deployment stream.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WorkloadStreamServer implements the gRPC-streamed fan-out of
// WorkloadUpdate to every connected subscriber, and satisfies the
// Coordinator.Push (WorkloadPusher) contract.
type WorkloadStreamServer struct {
	mu          sync.RWMutex
	subscribers map[string]chan *WorkloadUpdate
}

func NewWorkloadStreamServer() *WorkloadStreamServer {
	return &WorkloadStreamServer{subscribers: make(map[string]chan *WorkloadUpdate)}
}

// Subscribe registers a new subscriber channel, returning an unsubscribe func.
func (s *WorkloadStreamServer) Subscribe() (<-chan *WorkloadUpdate, func()) {
	id := uuid.New().String()
	ch := make(chan *WorkloadUpdate, 32)
	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
		close(ch)
	}
}

// PushWorkload implements agentcoord.WorkloadPusher.
func (s *WorkloadStreamServer) PushWorkload(projectID uuid.UUID, agentID string, currentWorkload, maxConcurrent int) {
	update := &WorkloadUpdate{ProjectID: projectID.String(), AgentID: agentID, CurrentWorkload: currentWorkload, MaxConcurrent: maxConcurrent}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// a slow subscriber drops the update rather than blocking the
			// workload-adjustment call path
		}
	}
}

// RegisterOn wires the streaming handler onto a *grpc.Server using a plain
// grpc.StreamDesc, avoiding generated *_grpc.pb.go scaffolding.
func (s *WorkloadStreamServer) RegisterOn(server *grpc.Server) {
	desc := &grpc.ServiceDesc{
		ServiceName: "agentmesh.agentcoord.WorkloadStream",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Subscribe",
				Handler:       s.handleSubscribe,
				ServerStreams: true,
			},
		},
		Metadata: "agentcoord/workload.proto",
	}
	server.RegisterService(desc, s)
}

func (s *WorkloadStreamServer) handleSubscribe(_ interface{}, stream grpc.ServerStream) error {
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(update); err != nil {
				return err
			}
		}
	}
}
