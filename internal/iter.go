// Package internal holds helpers shared by the isk packages.
package internal

import (
	"iter"
)

// IterSeq2Concat concatenates key/value iterators into a single sequence,
// in argument order.
func IterSeq2Concat[K any, V any](seqs ...iter.Seq2[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, seq := range seqs {
			for key, value := range seq {
				if !yield(key, value) {
					return
				}
			}
		}
	}
}
