package v1

import "github.com/go-pg/migrations/v8"

// Schema version 1 creates the registry metadata tables

func init() {
	up := `
	-- ----------------------------------------------------------------
	-- Name: publishers
	-- Model: model.Publisher
	-- ----------------------------------------------------------------

	CREATE TABLE publishers (
		"publisher_id"	bigserial PRIMARY KEY,
		"address"		bytea NOT NULL,
		"created_at"	timestamp with time zone NOT NULL DEFAULT now()
	);
	ALTER TABLE ONLY publishers ADD CONSTRAINT publishers_address_key UNIQUE (address);
	COMMENT ON TABLE publishers IS 'Signing identities registered with the registry.';
	COMMENT ON COLUMN publishers.address IS 'Twenty byte address recovered from the signup signature.';

	-- ----------------------------------------------------------------
	-- Name: namespaces
	-- Model: model.Namespace
	-- ----------------------------------------------------------------

	CREATE TABLE namespaces (
		"namespace_id"	bigserial PRIMARY KEY,
		"name"			text NOT NULL,
		"skeleton"		text NOT NULL,
		"owner_id"		bigint NOT NULL REFERENCES publishers (publisher_id),
		"created_at"	timestamp with time zone NOT NULL DEFAULT now()
	);
	ALTER TABLE ONLY namespaces ADD CONSTRAINT namespaces_name_key UNIQUE (name);
	ALTER TABLE ONLY namespaces ADD CONSTRAINT namespaces_skeleton_key UNIQUE (skeleton);
	COMMENT ON COLUMN namespaces.skeleton IS 'Confusable skeleton of the name; uniqueness makes visually confusable names collide.';

	-- ----------------------------------------------------------------
	-- Name: namespace_publishers
	-- Model: model.Member
	-- ----------------------------------------------------------------

	CREATE TABLE namespace_publishers (
		"namespace_id"	bigint NOT NULL REFERENCES namespaces (namespace_id),
		"publisher_id"	bigint NOT NULL REFERENCES publishers (publisher_id),
		"administrator"	boolean NOT NULL DEFAULT false,
		PRIMARY KEY ("namespace_id", "publisher_id")
	);
	COMMENT ON TABLE namespace_publishers IS 'Namespace members; the owner is implicit and not present.';

	-- ----------------------------------------------------------------
	-- Name: packages
	-- Model: model.Package
	-- ----------------------------------------------------------------

	CREATE TABLE packages (
		"package_id"	bigserial PRIMARY KEY,
		"namespace_id"	bigint NOT NULL REFERENCES namespaces (namespace_id),
		"name"			text NOT NULL,
		"skeleton"		text NOT NULL,
		"created_at"	timestamp with time zone NOT NULL DEFAULT now()
	);
	ALTER TABLE ONLY packages ADD CONSTRAINT packages_namespace_skeleton_key UNIQUE (namespace_id, skeleton);

	-- ----------------------------------------------------------------
	-- Name: publisher_restrictions
	-- Model: model.Restriction
	-- ----------------------------------------------------------------

	CREATE TABLE publisher_restrictions (
		"publisher_id"	bigint NOT NULL REFERENCES publishers (publisher_id),
		"package_id"	bigint NOT NULL REFERENCES packages (package_id),
		PRIMARY KEY ("publisher_id", "package_id")
	);
	COMMENT ON TABLE publisher_restrictions IS 'When any row exists for a publisher they may publish only the listed packages.';

	-- ----------------------------------------------------------------
	-- Name: versions
	-- Model: model.Version
	-- ----------------------------------------------------------------

	CREATE TABLE versions (
		"version_id"	bigserial PRIMARY KEY,
		"package_id"	bigint NOT NULL REFERENCES packages (package_id),
		"publisher_id"	bigint NOT NULL REFERENCES publishers (publisher_id),
		"major"			bigint NOT NULL,
		"minor"			bigint NOT NULL,
		"patch"			bigint NOT NULL,
		"pre"			text NOT NULL DEFAULT '',
		"build"			text NOT NULL DEFAULT '',
		"content_id"	text NOT NULL,
		"pointer_id"	text NOT NULL,
		"signature"		bytea NOT NULL,
		"checksum"		bytea NOT NULL,
		"package"		jsonb NOT NULL,
		"yanked"		text,
		"created_at"	timestamp with time zone NOT NULL DEFAULT now()
	);
	ALTER TABLE ONLY versions ADD CONSTRAINT versions_package_semver_key UNIQUE (package_id, major, minor, patch, pre, build);
	ALTER TABLE ONLY versions ADD CONSTRAINT versions_pointer_id_key UNIQUE (pointer_id);
	CREATE INDEX versions_package_order_idx ON versions (package_id, major DESC, minor DESC, patch DESC);
	COMMENT ON COLUMN versions.content_id IS 'Primary storage layer key recorded verbatim.';
	COMMENT ON COLUMN versions.pointer_id IS 'Keccak-256 of namespace/package/version in hex.';
	COMMENT ON COLUMN versions.yanked IS 'Yank reason; NULL means the version is live.';
`

	Patches.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(up)
		return err
	})
}
