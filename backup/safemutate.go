package backup

import "fmt"

// SafeMutate is the compensating-action guarantee shared by every engine:
// a mandatory pre-operation backup runs before the destructive mutation, so
// each restore is itself individually undoable. The pre-backup is not
// skippable; its failure aborts the mutation.
func SafeMutate(op string, preBackup func() (*Record, error), mutate func(pre *Record) error) (*Record, error) {
	pre, err := preBackup()
	if err != nil {
		return nil, fmt.Errorf("%s: pre-operation backup failed: %w", op, err)
	}
	if err := mutate(pre); err != nil {
		return pre, err
	}
	return pre, nil
}
