package service_test

import (
	"testing"

	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	hasher := service.NewPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("p@ss1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "p@ss1234" {
		t.Fatalf("expected password to be hashed")
	}

	other, err := hasher.Hash("p@ss1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if other == hash {
		t.Fatalf("expected salted hashes to differ")
	}

	if !hasher.Matches(hash, "p@ss1234") {
		t.Fatalf("expected password to match")
	}
	if hasher.Matches(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if hasher.Matches("", "p@ss1234") {
		t.Fatalf("expected empty hash to never match")
	}
}

func TestPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	hasher := service.NewPasswordHasher(99)

	hash, err := hasher.Hash("p@ss1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("cost failed: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", cost)
	}
}
