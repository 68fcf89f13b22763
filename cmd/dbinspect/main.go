package main

import (
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Roomnotes/data/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	var rooms []domain.Room
	var comments []domain.Comment
	userCount := 0

	err = db.View(func(txn *badger.Txn) error {
		if err := scan(txn, "room:", func(val []byte) error {
			var r domain.Room
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			rooms = append(rooms, r)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(txn, "cmt:", func(val []byte) error {
			var c domain.Comment
			if err := json.Unmarshal(val, &c); err != nil {
				return err
			}
			comments = append(comments, c)
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, "user:", func([]byte) error {
			userCount++
			return nil
		})
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	slices.SortFunc(rooms, func(a, b domain.Room) int { return strings.Compare(a.Name, b.Name) })

	byRoom := make(map[string][]domain.Comment)
	for _, c := range comments {
		byRoom[c.RoomID] = append(byRoom[c.RoomID], c)
	}

	for _, r := range rooms {
		roomComments := byRoom[r.ID]
		delete(byRoom, r.ID)

		tags := make(map[string]int)
		for _, c := range roomComments {
			for _, tag := range c.Tags {
				tags[tag]++
			}
		}

		fmt.Printf("Room: %s\n", r.Name)
		fmt.Printf("  ID: %s\n", r.ID)
		fmt.Printf("  Comments: %d\n", len(roomComments))
		for _, tag := range slices.Sorted(maps.Keys(tags)) {
			fmt.Printf("    #%s (%d)\n", tag, tags[tag])
		}
		fmt.Println()
	}

	orphans := 0
	for roomID, cs := range byRoom {
		orphans += len(cs)
		fmt.Printf("Orphaned comments for missing room %s: %d\n", roomID, len(cs))
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Rooms: %d\n", len(rooms))
	fmt.Printf("Comments: %d\n", len(comments))
	fmt.Printf("Orphaned comments: %d\n", orphans)
	fmt.Printf("Users: %d\n", userCount)
}

// scan calls fn with the value of every entity under prefix, skipping index keys.
func scan(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	indexPrefix := prefix + "idx:"
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		item := it.Item()
		if strings.HasPrefix(string(item.Key()), indexPrefix) {
			continue
		}
		if err := item.Value(fn); err != nil {
			log.Printf("Error reading %s: %v", item.Key(), err)
		}
	}
	return nil
}
