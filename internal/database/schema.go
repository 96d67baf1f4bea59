package database

// Schema contains all SQL statements for creating tables and indexes.
// Timestamps are unix seconds; ids are UUID strings.
const Schema = `
-- Workouts: one row per imported activity, created lazily by the first job
-- that processes its file and updated in place afterwards.
CREATE TABLE IF NOT EXISTS workouts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    source TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    sport TEXT NOT NULL DEFAULT 'other',
    sub_sport TEXT,

    start_time INTEGER,
    local_date TEXT,
    duration_sec INTEGER,
    moving_time_sec INTEGER,
    distance_m INTEGER,
    elev_gain_m INTEGER,
    elev_loss_m INTEGER,
    avg_speed_kmh REAL,
    avg_pace_s_per_km INTEGER,
    avg_hr INTEGER,
    max_hr INTEGER,
    avg_cadence_spm INTEGER,
    avg_cadence_rpm INTEGER,
    avg_power_w INTEGER,
    max_power_w INTEGER,
    np_power_w INTEGER,
    calories_kcal INTEGER,
    ef REAL,
    pa_hr_pct REAL,
    has_gps BOOLEAN,
    laps_count INTEGER,
    device_info TEXT,  -- JSON object
    fit_summary TEXT,  -- JSON object

    uploaded_at INTEGER NOT NULL,
    storage_path TEXT,
    filename TEXT,
    size_bytes INTEGER,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Source files: uploaded recordings living in the blob store
CREATE TABLE IF NOT EXISTS source_files (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    storage_bucket TEXT NOT NULL,
    storage_path TEXT NOT NULL,
    filename TEXT NOT NULL,
    extension TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    workout_id TEXT,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'processing', 'ready', 'error')),
    processed_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (workout_id) REFERENCES workouts(id) ON DELETE SET NULL
);

-- Import jobs: the work queue. Rows are kept as an audit trail.
CREATE TABLE IF NOT EXISTS import_jobs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    source_file_id TEXT NOT NULL,
    workout_id TEXT,

    attempt INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 5,
    status TEXT NOT NULL DEFAULT 'queued'
        CHECK (status IN ('queued', 'running', 'succeeded', 'retry_wait', 'failed')),
    priority INTEGER NOT NULL DEFAULT 0,
    scheduled_at INTEGER NOT NULL,

    locked_by TEXT,
    locked_at INTEGER,
    started_at INTEGER,
    finished_at INTEGER,

    error_message TEXT,
    output TEXT,  -- JSON result envelope

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (source_file_id) REFERENCES source_files(id) ON DELETE CASCADE
);

-- Preview streams: downsampled chart series, one row per workout
CREATE TABLE IF NOT EXISTS workout_streams_preview (
    workout_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    points_count INTEGER NOT NULL,
    s TEXT NOT NULL,  -- JSON {time_s, pace_s_per_km, hr}
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (workout_id) REFERENCES workouts(id) ON DELETE CASCADE
);

-- Indexes for import_jobs table
CREATE INDEX IF NOT EXISTS idx_import_jobs_claim ON import_jobs(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_import_jobs_order ON import_jobs(priority DESC, scheduled_at ASC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_import_jobs_source_file ON import_jobs(source_file_id);
CREATE INDEX IF NOT EXISTS idx_import_jobs_running ON import_jobs(locked_at) WHERE status = 'running';

-- Indexes for source_files table
CREATE INDEX IF NOT EXISTS idx_source_files_user ON source_files(user_id);
CREATE INDEX IF NOT EXISTS idx_source_files_workout ON source_files(workout_id);

-- Indexes for workouts table
CREATE INDEX IF NOT EXISTS idx_workouts_user_start ON workouts(user_id, start_time DESC);
`
