package postgresengine

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
)

// compileFilter translates a filter tree into a goqu expression over the
// events table, recursing through the combinators. Every expression is
// parameterized; filter values never end up interpolated into SQL text.
//
// Stream-type membership is not a column of the events table, so it compiles
// to a semi-join against the streams table.
func (es EventStore) compileFilter(filter eventstore.Filter) (exp.Expression, error) {
	switch f := filter.(type) {
	case eventstore.AllFilter:
		return goqu.L(litTrue), nil

	case eventstore.StreamIDFilter:
		return goqu.C(colStreamID).Eq(f.StreamID.String()), nil

	case eventstore.StreamTypesFilter:
		if len(f.StreamTypes) == 0 {
			return goqu.L(litFalse), nil
		}

		subquery := goqu.Dialect(dialectPostgres).
			From(es.streamTableName).
			Select(colStreamPK).
			Where(goqu.C(colStreamType).In(f.StreamTypes))

		return goqu.C(colStreamID).In(subquery), nil

	case eventstore.MetadataFilter:
		return goqu.L(colMetadata+sqlContainsJSONB, string(f.Metadata.JSON())), nil

	case eventstore.AfterVersionFilter:
		return goqu.C(colVersion).Gt(f.Version), nil

	case eventstore.CreatedAfterFilter:
		return goqu.C(colCreatedAt).Gt(f.After), nil

	case eventstore.AndFilter:
		left, err := es.compileFilter(f.Left)
		if err != nil {
			return nil, err
		}

		right, err := es.compileFilter(f.Right)
		if err != nil {
			return nil, err
		}

		return goqu.And(left, right), nil

	case eventstore.OrFilter:
		left, err := es.compileFilter(f.Left)
		if err != nil {
			return nil, err
		}

		right, err := es.compileFilter(f.Right)
		if err != nil {
			return nil, err
		}

		return goqu.Or(left, right), nil

	case eventstore.NotFilter:
		inner, err := es.compileFilter(f.Inner)
		if err != nil {
			return nil, err
		}

		return goqu.L(sqlNotWrapped, inner), nil

	default:
		return nil, eventstore.BuildUnsupportedFilterError(opStreamEvents, filter)
	}
}

// buildSelectQuery builds the parameterized select for StreamEvents. Rows come
// back ordered by (created_at, version) ascending so interleaved streams read
// back in global append order.
func (es EventStore) buildSelectQuery(filter eventstore.Filter) (string, []any, error) {
	where, err := es.compileFilter(filter)
	if err != nil {
		return "", nil, err
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Prepared(true).
		Select(colEventID, colStreamID, colEventType, colVersion, colPayload, colMetadata, colCreatedAt).
		Where(where).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colVersion).Asc())

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, eserrors.Internal("building select query failed").
			WithOperation(opStreamEvents).
			WithCause(toSQLErr)
	}

	return sqlQuery, args, nil
}
