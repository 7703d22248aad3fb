package store

import "testing"

func TestSettingsRepository_GetMissing(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	// A key that was never set reads back as empty, not as an error
	value, err := repo.Get("mapper.calibration")
	if err != nil {
		t.Fatalf("get of missing key should not error: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}
}

func TestSettingsRepository_SetAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	// Set a value
	if err := repo.Set("camera.device", "0"); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	// Read it back
	value, err := repo.Get("camera.device")
	if err != nil {
		t.Fatalf("failed to get value: %v", err)
	}
	if value != "0" {
		t.Errorf("expected %q, got %q", "0", value)
	}
}

func TestSettingsRepository_SetOverwrites(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if err := repo.Set("camera.device", "0"); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	// Setting the same key again replaces the value
	if err := repo.Set("camera.device", "2"); err != nil {
		t.Fatalf("failed to overwrite value: %v", err)
	}

	value, err := repo.Get("camera.device")
	if err != nil {
		t.Fatalf("failed to get value: %v", err)
	}
	if value != "2" {
		t.Errorf("expected %q after overwrite, got %q", "2", value)
	}
}

func TestSettingsRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if err := repo.Set("mapper.calibration", `{"complete":true}`); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	// Delete the key
	if err := repo.Delete("mapper.calibration"); err != nil {
		t.Fatalf("failed to delete key: %v", err)
	}

	// The key reads back as missing again
	value, err := repo.Get("mapper.calibration")
	if err != nil {
		t.Fatalf("get after delete should not error: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value after delete, got %q", value)
	}

	// Deleting a key that does not exist is not an error
	if err := repo.Delete("mapper.calibration"); err != nil {
		t.Errorf("delete of missing key should not error: %v", err)
	}
}
