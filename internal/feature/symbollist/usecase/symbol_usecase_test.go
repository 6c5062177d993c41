package usecase_test

import (
	"context"
	"errors"
	"testing"

	"tradinghub/internal/feature/symbollist/domain"
	"tradinghub/internal/feature/symbollist/domain/entity"
	"tradinghub/internal/feature/symbollist/usecase"
)

// mockSymbolRepository is a mock implementation of the SymbolRepository interface.
type mockSymbolRepository struct {
	ListActiveFunc      func(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodesFunc func(ctx context.Context) ([]string, error)
	SaveFunc            func(ctx context.Context, symbol entity.Symbol) error
	Saved               []entity.Symbol
}

func (m *mockSymbolRepository) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListActiveCodes(ctx context.Context) ([]string, error) {
	if m.ListActiveCodesFunc != nil {
		return m.ListActiveCodesFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) Save(ctx context.Context, symbol entity.Symbol) error {
	m.Saved = append(m.Saved, symbol)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, symbol)
	}
	return nil
}

func TestSymbolUsecase_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		code        string
		secType     string
		wantCode    string
		wantSecType string
		wantErr     error
	}{
		{
			name:        "success: normalizes code to upper case",
			code:        "aapl",
			secType:     "stk",
			wantCode:    "AAPL",
			wantSecType: "STK",
		},
		{
			name:        "success: empty sec type defaults to STK",
			code:        "MSFT",
			secType:     "",
			wantCode:    "MSFT",
			wantSecType: "STK",
		},
		{
			name:        "success: index sec type accepted",
			code:        "VIX",
			secType:     "IND",
			wantCode:    "VIX",
			wantSecType: "IND",
		},
		{
			name:    "failure: blank code",
			code:    "   ",
			wantErr: domain.ErrInvalidSymbol,
		},
		{
			name:    "failure: unsupported sec type",
			code:    "AAPL",
			secType: "OPT",
			wantErr: domain.ErrInvalidSymbol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &mockSymbolRepository{}
			uc := usecase.NewSymbolUsecase(repo)

			sym, err := uc.Register(context.Background(), tt.code, "a name", tt.secType)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(repo.Saved) != 0 {
					t.Error("invalid symbol must not be saved")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sym.Code != tt.wantCode || sym.SecType != tt.wantSecType {
				t.Errorf("registered %s/%s, want %s/%s", sym.Code, sym.SecType, tt.wantCode, tt.wantSecType)
			}
			if !sym.IsActive {
				t.Error("registered symbol must be active")
			}
			if len(repo.Saved) != 1 {
				t.Fatalf("expected 1 save, got %d", len(repo.Saved))
			}
		})
	}
}

func TestSymbolUsecase_Register_RepositoryError(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("database error")
	repo := &mockSymbolRepository{
		SaveFunc: func(ctx context.Context, symbol entity.Symbol) error { return dbErr },
	}
	uc := usecase.NewSymbolUsecase(repo)

	_, err := uc.Register(context.Background(), "AAPL", "", "")
	if !errors.Is(err, dbErr) {
		t.Errorf("expected repository error to propagate, got %v", err)
	}
}

func TestSymbolUsecase_ListActiveSymbols(t *testing.T) {
	t.Parallel()

	want := []entity.Symbol{{Code: "AAPL"}, {Code: "VIX"}}
	repo := &mockSymbolRepository{
		ListActiveFunc: func(ctx context.Context) ([]entity.Symbol, error) { return want, nil },
	}
	uc := usecase.NewSymbolUsecase(repo)

	got, err := uc.ListActiveSymbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 symbols, got %d", len(got))
	}
}
