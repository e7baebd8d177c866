package storage

import (
	"bytes"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	key := []byte("treasury")
	value := []byte{0x01, 0x02}

	if ok, err := db.Has(key); err != nil || ok {
		t.Fatalf("fresh db must not have key (ok=%v err=%v)", ok, err)
	}
	if _, err := db.Get(key); err == nil {
		t.Fatalf("expected miss error for absent key")
	}
	if err := db.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("expected %x, got %x", value, got)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has(key); ok {
		t.Fatalf("key survived delete")
	}
}

func TestMemDBCopiesValueOnPut(t *testing.T) {
	db := NewMemDB()
	value := []byte{0x01}
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 0xFF
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0] != 0x01 {
		t.Fatalf("stored value aliased the caller's buffer")
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("expected v, got %q", got)
	}
	if ok, err := db.Has([]byte("k")); err != nil || !ok {
		t.Fatalf("expected key present (ok=%v err=%v)", ok, err)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatalf("key survived delete")
	}
}
