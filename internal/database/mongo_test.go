package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "generic", err: errors.New("boom"), want: false},
		{name: "code 20", err: mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member"}, want: true},
		{name: "code 51", err: mongo.CommandError{Code: 51}, want: true},
		{name: "code 263", err: mongo.CommandError{Code: 263}, want: true},
		{name: "other code", err: mongo.CommandError{Code: 100, Message: "other"}, want: false},
		{name: "replica set wording", err: errors.New("transaction failed: not a replica set member"), want: true},
		{name: "session wording", err: errors.New("sessions are not supported by this deployment"), want: true},
		{name: "transaction only", err: errors.New("transaction failed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDup(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	if !IsDup(dup) {
		t.Fatal("expected write exception with code 11000 to be a duplicate")
	}
	if !IsDup(mongo.CommandError{Code: 11000}) {
		t.Fatal("expected command error 11000 to be a duplicate")
	}
	if IsDup(mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121}}}) {
		t.Fatal("validation failure is not a duplicate")
	}
	if IsDup(nil) {
		t.Fatal("nil is not a duplicate")
	}
}

func TestIndexSpecsCoverCollections(t *testing.T) {
	seen := map[string]bool{}
	for _, spec := range indexSpecs() {
		seen[spec.collection] = true
		if len(spec.models) == 0 {
			t.Errorf("%s has no indexes", spec.collection)
		}
	}
	for _, name := range []string{CollectionUsers, CollectionGroups, CollectionPenalties, CollectionMessages, CollectionUpdates} {
		if !seen[name] {
			t.Errorf("missing indexes for %s", name)
		}
	}
}

func TestTransactionFlagConcurrentAccess(t *testing.T) {
	m := &Mongo{}
	m.transactions.Store(false)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ran int
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := m.RunInTransaction(context.Background(), func(context.Context) error {
				mu.Lock()
				ran++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("RunInTransaction: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = m.SupportsTransactions()
			m.transactions.Store(false)
		}()
	}
	wg.Wait()

	if ran != 20 {
		t.Fatalf("fn ran %d times, want 20", ran)
	}
	if m.SupportsTransactions() {
		t.Fatal("expected transactions to stay disabled")
	}
}
