package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- SUBJECT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS subject SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON subject TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON subject TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON subject TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON subject TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS subject_name ON subject FIELDS name;

    -- ==========================================================================
    -- MESSAGE TABLE (append-only log per subject)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS subject ON message TYPE record<subject>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["caregiver", "assistant"];
    DEFINE FIELD IF NOT EXISTS body ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_subject_created ON message FIELDS subject, created_at;
`
