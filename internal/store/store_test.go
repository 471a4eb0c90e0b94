package store

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/keygrid-core/internal/infrastructure/config"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/database"
	"github.com/nerrad567/keygrid-core/internal/render"
	"github.com/nerrad567/keygrid-core/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "keygrid.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImages_AddListGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteImageRepository(openTestDB(t).DB)

	info, err := repo.Add(ctx, "S1", pngBytes(t, 8, 4))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if info.Format != "png" || info.Width != 8 || info.Height != 4 || info.ID == "" {
		t.Errorf("Add() = %+v", info)
	}

	if _, err := repo.Add(ctx, "S2", pngBytes(t, 2, 2)); err != nil {
		t.Fatal(err)
	}

	list, err := repo.List(ctx, "S1")
	if err != nil || len(list) != 1 || list[0].ID != info.ID {
		t.Fatalf("List(S1) = %+v, %v", list, err)
	}

	img, err := repo.Get(ctx, "S1", info.ID)
	if err != nil || len(img.Data) == 0 {
		t.Fatalf("Get() = %v, %v", img, err)
	}
	if _, err := repo.Get(ctx, "S2", info.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("Get() from other device = %v, want ErrImageNotFound", err)
	}

	src := repo.Source("S1")
	if decoded, ok := src(info.ID); !ok || decoded.Bounds().Dx() != 8 {
		t.Error("Source() did not resolve the image")
	}

	if err := repo.Delete(ctx, "S1", info.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "S1", info.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("second Delete() = %v", err)
	}
	if _, ok := src(info.ID); ok {
		t.Error("Source() resolved a deleted image")
	}
}

func TestImages_RejectsInvalidBytes(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteImageRepository(openTestDB(t).DB)

	if _, err := repo.Add(ctx, "S1", []byte("definitely not an image")); !errors.Is(err, render.ErrInvalidImage) {
		t.Errorf("Add() error = %v, want ErrInvalidImage", err)
	}
	if list, _ := repo.List(ctx, "S1"); len(list) != 0 {
		t.Errorf("invalid image stored: %+v", list)
	}
}

func TestHistory_RecordListPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteHistoryRepository(openTestDB(t).DB)

	old := &Action{Serial: "S1", Key: 1, Source: "device", OccurredAt: time.Now().Add(-48 * time.Hour)}
	if err := repo.Record(ctx, old); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	recent := &Action{Serial: "S1", Key: 7, Source: "socket", Components: []string{"renderer"}, Modules: []string{"core"}}
	if err := repo.Record(ctx, recent); err != nil {
		t.Fatal(err)
	}
	if recent.ID == 0 {
		t.Error("Record() did not set ID")
	}

	list, err := repo.List(ctx, "S1", 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %+v, %v", list, err)
	}
	if list[0].Key != 7 || list[0].Components[0] != "renderer" || list[0].Modules[0] != "core" {
		t.Errorf("newest action = %+v", list[0])
	}
	if list[1].Components == nil {
		t.Error("empty components decoded as nil")
	}

	n, err := repo.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v", n, err)
	}
	if list, _ := repo.List(ctx, "S1", 1); len(list) != 1 || list[0].Key != 7 {
		t.Errorf("after prune = %+v", list)
	}
}
