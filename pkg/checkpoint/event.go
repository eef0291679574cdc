package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
)

// Event saves network parameters at the end of every Every-th epoch, and of
// the final one. With an archive it uploads the store when training ends.
// When Resume names a run, training begins from that run's latest snapshot,
// fetched from the archive if the store holds none.
type Event struct {
	Store   *Store
	Archive *Archive // optional
	Every   int
	Resume  string
}

func (e *Event) Notify(ctx context.Context, n component.Notification) error {
	switch n.Stage {
	case component.StageTrainingBegin:
		if e.Resume == "" {
			return nil
		}
		return e.resume(ctx, n)
	case component.StageEpochEnd:
		if !e.due(n.Epoch, n.Epochs) {
			return nil
		}
		ps, ok := n.Network.(component.ParameterStore)
		if !ok {
			log.Printf("[Checkpoint] Network %T exposes no parameters, skipping epoch %d", n.Network, n.Epoch)
			return nil
		}
		if err := e.Store.Save(n.RunID, n.Epoch, ps.Parameters()); err != nil {
			return fmt.Errorf("saving checkpoint for epoch %d: %w", n.Epoch, err)
		}
		log.Printf("[Checkpoint] Saved run %s epoch %d", n.RunID, n.Epoch)
	case component.StageTrainingEnd:
		if e.Archive == nil {
			return nil
		}
		if _, err := e.Archive.Upload(ctx, e.Store, n.RunID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Event) resume(ctx context.Context, n component.Notification) error {
	ps, ok := n.Network.(component.ParameterStore)
	if !ok {
		return fmt.Errorf("cannot resume %s: network %T exposes no parameters", e.Resume, n.Network)
	}

	epoch, err := e.Store.Latest(e.Resume)
	if errors.Is(err, ErrNotFound) && e.Archive != nil {
		if _, err = e.Archive.Download(ctx, e.Store, e.Resume); err != nil {
			return fmt.Errorf("downloading checkpoint %s: %w", e.Resume, err)
		}
		epoch, err = e.Store.Latest(e.Resume)
	}
	if err != nil {
		return fmt.Errorf("resuming %s: %w", e.Resume, err)
	}

	if err := e.Store.Restore(e.Resume, epoch, ps.Parameters()); err != nil {
		return fmt.Errorf("restoring %s epoch %d: %w", e.Resume, epoch, err)
	}
	log.Printf("[Checkpoint] Run %s starts from %s epoch %d", n.RunID, e.Resume, epoch)
	return nil
}

func (e *Event) due(epoch, epochs int) bool {
	every := e.Every
	if every <= 0 {
		every = 1
	}
	return epoch%every == 0 || epoch == epochs
}
