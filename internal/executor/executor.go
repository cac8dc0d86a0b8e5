package executor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/codec"
	"github.com/gridbase/gridbase/internal/validator"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/spf13/cast"
)

// Executor runs a table's actions against its source adapter. It holds no
// durable state of its own: every mutation is delegated to the adapter.
type Executor struct {
	logger     logger.Logger
	registry   *internal.AdapterRegistry
	validators *validator.Cache
	codec      *codec.FieldCodec
	maxDepth   int
}

// Config wires the executor's collaborators.
type Config struct {
	Logger     logger.Logger
	Registry   *internal.AdapterRegistry
	Validators *validator.Cache

	// Codec may be nil when no table marks fields encrypted.
	Codec *codec.FieldCodec

	// MaxRecursiveDepth bounds process action recursion. Zero means the
	// default of 100.
	MaxRecursiveDepth int
}

// New creates an executor.
func New(config Config) *Executor {
	maxDepth := config.MaxRecursiveDepth
	if maxDepth <= 0 {
		maxDepth = internal.DefaultConfig().MaxRecursiveDepth
	}
	return &Executor{
		logger:     config.Logger.WithPrefix("[executor]"),
		registry:   config.Registry,
		validators: config.Validators,
		codec:      config.Codec,
		maxDepth:   maxDepth,
	}
}

// Execute resolves the action by id on the table and applies it to the given
// rows in input order.
func (e *Executor) Execute(ctx context.Context, table *internal.Table, actionID string, rows []internal.Row, secret string) error {
	return e.execute(ctx, table, actionID, rows, secret, 0)
}

func (e *Executor) execute(ctx context.Context, table *internal.Table, actionID string, rows []internal.Row, secret string, depth int) error {
	// checked before anything else so a runaway process chain stops even if
	// every action id resolves
	if depth > e.maxDepth {
		return errors.Mark(errors.Newf("action %s on table %s exceeded max recursive depth %d", actionID, table.ID, e.maxDepth), internal.ErrRecursionLimit)
	}
	action := table.Action(actionID)
	if action == nil {
		return errors.Mark(errors.Newf("action %s not found on table %s", actionID, table.ID), internal.ErrActionNotFound)
	}
	adapter, err := e.registry.Adapter(table.SourceID)
	if err != nil {
		return err
	}
	internal.ActionsExecuted.WithLabelValues(string(action.Type)).Inc()
	switch action.Type {
	case internal.ActionTypeAdd:
		return e.executeAdd(ctx, adapter, table, rows, secret)
	case internal.ActionTypeUpdate:
		return e.executeUpdate(ctx, adapter, table, rows, secret)
	case internal.ActionTypeDelete:
		return e.executeDelete(ctx, adapter, table, rows, secret)
	case internal.ActionTypeProcess:
		return e.executeProcess(ctx, table, action, rows, secret, depth)
	default:
		return errors.Newf("action %s on table %s has unsupported type %s", actionID, table.ID, action.Type)
	}
}

func (e *Executor) executeAdd(ctx context.Context, adapter internal.SourceAdapter, table *internal.Table, rows []internal.Row, secret string) error {
	adder, ok := adapter.(internal.RowAdder)
	if !ok {
		e.logger.Debug("source %s has no add capability, skipping", table.SourceID)
		return nil
	}
	v, err := e.validators.Get(table)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if err := v.Validate(row); err != nil {
			return err
		}
		encoded, err := e.encodeRow(table, row)
		if err != nil {
			return err
		}
		if err := adder.AddRow(ctx, table, secret, encoded); err != nil {
			return errors.Wrapf(err, "adding row %d to table %s", i, table.ID)
		}
	}
	return nil
}

func (e *Executor) executeUpdate(ctx context.Context, adapter internal.SourceAdapter, table *internal.Table, rows []internal.Row, secret string) error {
	updater, ok := adapter.(internal.RowUpdater)
	if !ok {
		e.logger.Debug("source %s has no update capability, skipping", table.SourceID)
		return nil
	}
	v, err := e.validators.Get(table)
	if err != nil {
		return err
	}
	for i, row := range rows {
		key := keyOf(table, row)
		if key == nil {
			e.logger.Debug("row %d has no resolvable key for table %s, skipping", i, table.ID)
			continue
		}
		if err := v.Validate(row); err != nil {
			return err
		}
		encoded, err := e.encodeRow(table, row)
		if err != nil {
			return err
		}
		if err := updater.UpdateRow(ctx, table, secret, key, encoded); err != nil {
			return errors.Wrapf(err, "updating row %d on table %s", i, table.ID)
		}
	}
	return nil
}

func (e *Executor) executeDelete(ctx context.Context, adapter internal.SourceAdapter, table *internal.Table, rows []internal.Row, secret string) error {
	deleter, ok := adapter.(internal.RowDeleter)
	if !ok {
		e.logger.Debug("source %s has no delete capability, skipping", table.SourceID)
		return nil
	}
	for i, row := range rows {
		key := keyOf(table, row)
		if key == nil {
			e.logger.Debug("row %d has no resolvable key for table %s, skipping", i, table.ID)
			continue
		}
		if err := deleter.DeleteRow(ctx, table, secret, key); err != nil {
			return errors.Wrapf(err, "deleting row %d on table %s", i, table.ID)
		}
	}
	return nil
}

// executeProcess runs the configured sub-actions strictly sequentially since
// later sub-actions may depend on state mutated by earlier ones. Each id is
// resolved at dispatch time, never ahead of it.
func (e *Executor) executeProcess(ctx context.Context, table *internal.Table, action *internal.Action, rows []internal.Row, secret string, depth int) error {
	ids, err := cast.ToStringSliceE(action.Config[internal.ActionConfigSubActions])
	if err != nil {
		return errors.Wrapf(err, "process action %s on table %s has invalid sub-action config", action.ID, table.ID)
	}
	for _, id := range ids {
		if err := e.execute(ctx, table, id, rows, secret, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) encodeRow(table *internal.Table, row internal.Row) (internal.Row, error) {
	if e.codec == nil {
		if table.HasEncryptedFields() {
			return nil, errors.Newf("table %s has encrypted fields but no encryption secret is configured", table.ID)
		}
		return row, nil
	}
	return e.codec.EncodeRow(table, row)
}

// keyOf extracts the key field subset of the row, or nil when the table has
// no key field or the row carries no value for it.
func keyOf(table *internal.Table, row internal.Row) internal.Row {
	kf := table.KeyField()
	if kf == nil {
		return nil
	}
	val, ok := row[kf.ID]
	if !ok || val == nil {
		return nil
	}
	return internal.Row{kf.ID: val}
}
