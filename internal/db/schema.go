package db

// Schema documents the Postgres objects the gateway assumes are already
// applied (spec.md §1 excludes migrations from scope, and §6 names these
// objects). It is not executed; it exists so the SQL the gateway issues
// below is checkable against the shape it was written for.
const Schema = `
CREATE TABLE notifications (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id           UUID NOT NULL,
    title             TEXT NOT NULL,
    message           TEXT NOT NULL,
    notification_type TEXT NOT NULL,
    priority          TEXT NOT NULL DEFAULT 'normal',
    payload           JSONB NOT NULL DEFAULT '{}',
    is_processed      BOOLEAN NOT NULL DEFAULT FALSE,
    deliver_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    error_count       INTEGER NOT NULL DEFAULT 0,
    last_error        TEXT,
    last_error_at     TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX idx_notifications_due
    ON notifications (created_at ASC)
    WHERE is_processed = FALSE;

CREATE TABLE user_devices (
    user_id  UUID NOT NULL,
    token    TEXT NOT NULL,
    platform TEXT NOT NULL,
    PRIMARY KEY (user_id, token)
);

-- sp_notification_success is called by RecordSuccess. It is conditional on
-- is_processed = false so concurrent workers cannot both report success.
CREATE OR REPLACE FUNCTION sp_notification_success(p_id UUID)
RETURNS BOOLEAN AS $$
DECLARE
    affected INTEGER;
BEGIN
    UPDATE notifications
       SET is_processed = TRUE, updated_at = now()
     WHERE id = p_id AND is_processed = FALSE;
    GET DIAGNOSTICS affected = ROW_COUNT;
    RETURN affected = 1;
END;
$$ LANGUAGE plpgsql;

-- sp_notification_failure is called by RecordFailure. It increments
-- error_count and, once error_count + 1 >= max_retries, also sets
-- is_processed = true in the same statement, returning both the new
-- terminal state and the new error_count so the caller can log it without
-- a second round-trip.
CREATE OR REPLACE FUNCTION sp_notification_failure(
    p_id UUID, p_error TEXT, p_max_retries INTEGER
) RETURNS TABLE(stop BOOLEAN, count INTEGER) AS $$
DECLARE
    became_terminal BOOLEAN;
    new_count       INTEGER;
BEGIN
    UPDATE notifications
       SET error_count   = error_count + 1,
           last_error    = p_error,
           last_error_at = now(),
           updated_at    = now(),
           is_processed  = (error_count + 1 >= p_max_retries)
     WHERE id = p_id AND is_processed = FALSE
     RETURNING is_processed, error_count INTO became_terminal, new_count;
    RETURN QUERY SELECT COALESCE(became_terminal, FALSE), COALESCE(new_count, 0);
END;
$$ LANGUAGE plpgsql;

-- fn_notification_inserted / its trigger emit the row id on notify_event.
-- The legacy trigger name ("notify_new_notification") used NEW.notification_id;
-- this gateway only ever matches the current trigger's NEW.id payload and
-- must not coexist with the legacy one (spec.md §9 open question).
CREATE OR REPLACE FUNCTION fn_notification_inserted() RETURNS TRIGGER AS $$
BEGIN
    PERFORM pg_notify('notify_event', NEW.id::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE TRIGGER trg_notification_inserted
    AFTER INSERT ON notifications
    FOR EACH ROW EXECUTE FUNCTION fn_notification_inserted();
`

// NotifyChannel is the LISTEN/NOTIFY channel name the trigger above targets.
const NotifyChannel = "notify_event"
