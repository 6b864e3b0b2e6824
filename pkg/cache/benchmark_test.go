package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/pkg/enrich"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

func BenchmarkLRUGet(b *testing.B) {
	c := NewLRU(Options[int]{MaxSize: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key%d", i), i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key999")
	}
}

func BenchmarkLRUSet(b *testing.B) {
	c := NewLRU(Options[int]{MaxSize: 10000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("key%d", i), i)
	}
}

func BenchmarkBodyCacheHit(b *testing.B) {
	tcx, err := mir.NewContextBuilder().AddProcedure(&mir.Procedure{
		ID:        "unit",
		Signature: &mir.Signature{},
		Body: &mir.Body{
			Locals: []mir.LocalDecl{{Ty: mir.Unit()}},
			Blocks: []mir.BlockData{{Terminator: mir.Return()}},
		},
	}).Build()
	if err != nil {
		b.Fatal(err)
	}
	bc := NewBodyCache(tcx, 1, nil, enrich.WithLogger(log.Discard()))
	if _, err := bc.Get(context.Background(), "unit"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bc.Get(context.Background(), "unit")
	}
}
