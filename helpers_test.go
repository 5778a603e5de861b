package zetro

import (
	"sync"
	"testing"
)

// Shared fixtures: the chatroom schema, its Go bindings, and a small
// in-memory store for handler tests. The layout is built by hand here; the
// text-to-layout pipeline has its own tests in the compiler package.

type RoomStatus uint8

const (
	RoomActive RoomStatus = iota
	RoomDisabled
)

type AuthorRef struct {
	Username string
}

type Message struct {
	ID     uint64
	Author AuthorRef
	Date   uint32
	Text   string
}

type Chatroom struct {
	ID       uint64
	Name     string
	Status   RoomStatus
	Messages []Message
}

type GetRoomsRequest struct {
	WithStatus *RoomStatus
}

type GetRoomsResponse struct {
	Rooms []Chatroom
}

type SendMessageRequest struct {
	RoomID uint64 `zetro:"roomId"`
	Msg    Message
}

func scalar(k TypeKind) *TypeRef         { return &TypeRef{Kind: k} }
func optional(e *TypeRef) *TypeRef       { return &TypeRef{Kind: TypeOptional, Elem: e} }
func array(e *TypeRef) *TypeRef          { return &TypeRef{Kind: TypeArray, Elem: e} }
func structRef(s *StructLayout) *TypeRef { return &TypeRef{Kind: TypeStruct, Struct: s} }
func enumRef(e *EnumLayout) *TypeRef     { return &TypeRef{Kind: TypeEnum, Enum: e} }

func chatroomLayout() *Layout {
	roomStatus := &EnumLayout{Name: "RoomStatus", Variants: []string{"ACTIVE", "DISABLED"}}
	authorRef := &StructLayout{Name: "AuthorRef", Fields: []FieldLayout{
		{Name: "username", Type: scalar(TypeString)},
	}}
	message := &StructLayout{Name: "Message", Fields: []FieldLayout{
		{Name: "id", Type: scalar(TypeU64)},
		{Name: "author", Type: structRef(authorRef)},
		{Name: "date", Type: scalar(TypeU32)},
		{Name: "text", Type: scalar(TypeString)},
	}}
	chatroom := &StructLayout{Name: "Chatroom", Fields: []FieldLayout{
		{Name: "id", Type: scalar(TypeU64)},
		{Name: "name", Type: scalar(TypeString)},
		{Name: "status", Type: enumRef(roomStatus)},
		{Name: "messages", Type: array(structRef(message))},
	}}
	getRoomsRequest := &StructLayout{Name: "GetRoomsRequest", Fields: []FieldLayout{
		{Name: "withStatus", Type: optional(enumRef(roomStatus))},
	}}
	getRoomsResponse := &StructLayout{Name: "GetRoomsResponse", Fields: []FieldLayout{
		{Name: "rooms", Type: array(structRef(chatroom))},
	}}
	sendMessageRequest := &StructLayout{Name: "SendMessageRequest", Fields: []FieldLayout{
		{Name: "roomId", Type: scalar(TypeU64)},
		{Name: "msg", Type: structRef(message)},
	}}
	return NewLayout(
		[]*StructLayout{authorRef, message, chatroom, getRoomsRequest, getRoomsResponse, sendMessageRequest},
		[]*EnumLayout{roomStatus},
	)
}

func chatroomTable(t *testing.T) *RouteTable {
	t.Helper()
	l := chatroomLayout()
	table, err := NewRouteTable(l, []Route{
		{
			Name: "GetRooms", Kind: RouteQuery, WireName: "GetRooms",
			Request:  structRef(l.Struct("GetRoomsRequest")),
			Response: structRef(l.Struct("GetRoomsResponse")),
		},
		{
			Name: "SendMessage", Kind: RouteMutation, WireName: "SendMessage",
			Request:  structRef(l.Struct("SendMessageRequest")),
			Response: scalar(TypeU64),
		},
	})
	if err != nil {
		t.Fatalf("NewRouteTable: %v", err)
	}
	return table
}

// seedRooms returns two rooms with fixed ids and empty message lists. The
// second room is disabled so status filters have something to drop.
func seedRooms() []Chatroom {
	return []Chatroom{
		{ID: 0, Name: "Furry cats", Status: RoomActive, Messages: []Message{}},
		{ID: 1, Name: "Differential calculus", Status: RoomDisabled, Messages: []Message{}},
	}
}

// roomStore is the in-memory backend the handler tests serve from.
type roomStore struct {
	mu      sync.Mutex
	rooms   []Chatroom
	counter uint64
}

func newRoomStore() *roomStore {
	return &roomStore{rooms: seedRooms(), counter: 248949}
}

func (s *roomStore) getRooms(req *GetRoomsRequest) *GetRoomsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]Chatroom, 0, len(s.rooms))
	for _, r := range s.rooms {
		if req.WithStatus != nil && r.Status != *req.WithStatus {
			continue
		}
		rooms = append(rooms, r)
	}
	return &GetRoomsResponse{Rooms: rooms}
}

func (s *roomStore) sendMessage(req *SendMessageRequest) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID == req.RoomID {
			msg := req.Msg
			msg.ID = s.counter
			s.counter++
			s.rooms[i].Messages = append(s.rooms[i].Messages, msg)
			return msg.ID, true
		}
	}
	return 0, false
}
