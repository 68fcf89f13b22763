// Package main seeds a database with sample rooms and tagged comments.
//
// Usage:
//
//	DATA_PATH=~/Roomnotes/data go run ./cmd/seed
//	DATA_PATH=~/Roomnotes/data go run ./cmd/seed --backend sqlite --comments 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/logger"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/store/sqlite"
)

var (
	backend  = flag.String("backend", config.BackendBadger, "Store backend: badger or sqlite")
	perRoom  = flag.Int("comments", 8, "Comments to create per room")
	roomList = []string{"Kitchen", "Garden", "Garage", "Living room", "Office"}
	tagList  = []string{"urgent", "shopping", "later", "ideas", "repair"}
	notes    = []string{
		"Buy more coffee",
		"Fix the squeaky hinge",
		"Call the plumber about the leak",
		"Plant the tomato seedlings",
		"Sort the recycling",
		"Replace the light bulb",
		"Order new filters",
		"Clean out the gutters",
		"Find the spare keys",
		"Paint the fence",
	}
)

func main() {
	flag.Parse()

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Roomnotes/data")
	}
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	s, err := openStore(dataPath, *backend)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	quiet := logger.Discard().Logger
	rooms := service.NewRoomService(s, config.CascadeTransactional, quiet)
	comments := service.NewCommentService(s, quiet)

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	seeder := &domain.User{Record: domain.Record{ID: "user-seed"}, Email: "seed@roomnotes.local"}

	created := 0
	for _, name := range roomList {
		room, err := rooms.Create(ctx, service.CreateRoomRequest{Name: name})
		if err != nil {
			log.Printf("Failed to create room %q: %v", name, err)
			continue
		}
		fmt.Printf("Room: %s (%s)\n", room.Name, room.ID)

		for range *perRoom {
			req := service.CreateCommentRequest{
				RoomID: room.ID,
				Text:   notes[rng.Intn(len(notes))],
				Tags:   pickTags(rng),
			}
			c, err := comments.Create(ctx, seeder, req)
			if err != nil {
				log.Printf("Failed to create comment: %v", err)
				continue
			}
			fmt.Printf("  %s %v\n", c.Text, c.Tags)
			created++
		}
	}

	fmt.Printf("\nSeeded %d rooms and %d comments into %s (%s)\n", len(roomList), created, dataPath, *backend)
}

func openStore(dataPath, backend string) (store.Store, error) {
	switch backend {
	case config.BackendSQLite:
		return sqlite.Open(filepath.Join(dataPath, "roomnotes.db"), nil, store.NewNoopEmitter())
	case config.BackendBadger:
		return store.New(filepath.Join(dataPath, "db"), nil, store.NewNoopEmitter())
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// pickTags returns zero to two distinct tags.
func pickTags(rng *rand.Rand) []string {
	n := rng.Intn(3)
	perm := rng.Perm(len(tagList))
	tags := make([]string, 0, n)
	for _, idx := range perm[:n] {
		tags = append(tags, tagList[idx])
	}
	return tags
}
