package engine

import "github.com/uhyunpark/hyperbook/pkg/storage"

const maxTapeBatch = 256

// runTape persists trade batches until the tape channel is closed. Batches
// that are already waiting are written together.
func (e *Engine) runTape() {
	if e.store == nil {
		for range e.tape {
		}
		return
	}

	batch := make([]storage.TradeRecord, 0, maxTapeBatch)
	for recs := range e.tape {
		batch = append(batch[:0], recs...)
	drain:
		for len(batch) < maxTapeBatch {
			select {
			case more, ok := <-e.tape:
				if !ok {
					break drain
				}
				batch = append(batch, more...)
			default:
				break drain
			}
		}

		if err := e.store.SaveTrades(batch); err != nil {
			e.tapeFailed.Add(uint64(len(batch)))
			e.log.Errorw("tape_write_failed",
				"count", len(batch),
				"first_seq", batch[0].Seq,
				"err", err,
			)
			continue
		}
		e.log.Debugw("tape_written", "count", len(batch), "last_seq", batch[len(batch)-1].Seq)
	}
}
