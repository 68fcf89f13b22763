package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/service"
)

func (s *Server) registerRoomRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listRooms",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms",
		Summary:     "List rooms",
		Description: "Returns every room ordered by name",
		Tags:        []string{"Rooms"},
	}, s.handleListRooms)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createRoom",
		Method:        http.MethodPost,
		Path:          "/api/v1/rooms",
		Summary:       "Create room",
		Description:   "Creates a room. The ID may be chosen by the client.",
		Tags:          []string{"Rooms"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateRoom)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRoom",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms/{id}",
		Summary:     "Get room",
		Description: "Returns a room by ID",
		Tags:        []string{"Rooms"},
	}, s.handleGetRoom)

	huma.Register(s.api, huma.Operation{
		OperationID: "renameRoom",
		Method:      http.MethodPatch,
		Path:        "/api/v1/rooms/{id}",
		Summary:     "Rename room",
		Description: "Changes the room name",
		Tags:        []string{"Rooms"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRenameRoom)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteRoom",
		Method:      http.MethodDelete,
		Path:        "/api/v1/rooms/{id}",
		Summary:     "Delete room",
		Description: "Deletes a room and its comments following the server's cascade mode",
		Tags:        []string{"Rooms"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteRoom)
}

// === DTOs ===

// RoomResponse contains room data in API responses.
type RoomResponse struct {
	ID        string    `json:"id" doc:"Room ID"`
	Name      string    `json:"name" doc:"Room name"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time `json:"updated_at" doc:"Last update time"`
}

// ListRoomsResponse contains a list of rooms.
type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms" doc:"Rooms ordered by name"`
}

// ListRoomsOutput wraps the list rooms response for Huma.
type ListRoomsOutput struct {
	Body ListRoomsResponse
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	ID   string `json:"id,omitempty" doc:"Client-chosen room ID"`
	Name string `json:"name" doc:"Room name"`
}

// CreateRoomInput wraps the create room request for Huma.
type CreateRoomInput struct {
	Body CreateRoomRequest
}

// RoomIDInput identifies a room.
type RoomIDInput struct {
	ID string `path:"id" doc:"Room ID"`
}

// RenameRoomRequest is the request body for renaming a room.
type RenameRoomRequest struct {
	Name string `json:"name" doc:"New room name"`
}

// RenameRoomInput wraps the rename room request for Huma.
type RenameRoomInput struct {
	ID   string `path:"id" doc:"Room ID"`
	Body RenameRoomRequest
}

// RoomOutput wraps the room response for Huma.
type RoomOutput struct {
	Body RoomResponse
}

// DeleteRoomResponse reports what a delete removed.
type DeleteRoomResponse struct {
	RoomID     string   `json:"room_id" doc:"Deleted room ID"`
	CommentIDs []string `json:"comment_ids" doc:"Deleted comment IDs"`
	Mode       string   `json:"mode" doc:"Cascade mode used: client or transactional"`
}

// DeleteRoomOutput wraps the delete room response for Huma.
type DeleteRoomOutput struct {
	Body DeleteRoomResponse
}

// === Handlers ===

func (s *Server) handleListRooms(ctx context.Context, _ *struct{}) (*ListRoomsOutput, error) {
	rooms, err := s.services.Rooms.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]RoomResponse, len(rooms))
	for i, r := range rooms {
		resp[i] = toRoomResponse(r)
	}
	return &ListRoomsOutput{Body: ListRoomsResponse{Rooms: resp}}, nil
}

func (s *Server) handleCreateRoom(ctx context.Context, input *CreateRoomInput) (*RoomOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	room, err := s.services.Rooms.Create(ctx, service.CreateRoomRequest{
		ID:   input.Body.ID,
		Name: input.Body.Name,
	})
	if err != nil {
		return nil, err
	}
	return &RoomOutput{Body: toRoomResponse(room)}, nil
}

func (s *Server) handleGetRoom(ctx context.Context, input *RoomIDInput) (*RoomOutput, error) {
	room, err := s.services.Rooms.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &RoomOutput{Body: toRoomResponse(room)}, nil
}

func (s *Server) handleRenameRoom(ctx context.Context, input *RenameRoomInput) (*RoomOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	room, err := s.services.Rooms.Rename(ctx, input.ID, service.RenameRoomRequest{Name: input.Body.Name})
	if err != nil {
		return nil, err
	}
	return &RoomOutput{Body: toRoomResponse(room)}, nil
}

func (s *Server) handleDeleteRoom(ctx context.Context, input *RoomIDInput) (*DeleteRoomOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	result, err := s.services.Rooms.Delete(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &DeleteRoomOutput{Body: DeleteRoomResponse{
		RoomID:     result.RoomID,
		CommentIDs: result.CommentIDs,
		Mode:       result.Mode,
	}}, nil
}

func toRoomResponse(r *domain.Room) RoomResponse {
	return RoomResponse{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
