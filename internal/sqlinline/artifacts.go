package sqlinline

const QCreateArtifactsTable = `--sql 0c3f6f0e-5b7a-4c59-9d1e-2f8b4a61c7d2
create table if not exists artifacts (
    id uuid primary key,
    owner_id text not null,
    kind text not null,
    title text not null default '',
    content jsonb not null,
    markdown text not null default '',
    export_key text,
    metadata jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now()
);
`

const QCreateArtifactsOwnerIndex = `--sql 5e2d8a41-93c6-4f0b-b8a7-6d1c0e4f2a95
create index if not exists artifacts_owner_created_idx
on artifacts (owner_id, created_at desc);
`

const QInsertArtifact = `--sql 9b71c4d3-2e85-4a6f-8c0d-73f1e5a2b6c8
insert into artifacts (id, owner_id, kind, title, content, markdown, export_key, metadata, created_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::jsonb, $6::text, nullif($7::text, ''), $8::jsonb, $9::timestamptz);
`

const QSelectArtifactByID = `--sql d4a6e8f2-71b3-4c95-a0e7-58c2b9d13f64
select id::text, owner_id, kind, title, content, markdown, coalesce(export_key, ''), metadata, created_at
from artifacts
where id = $1::uuid
limit 1;
`
