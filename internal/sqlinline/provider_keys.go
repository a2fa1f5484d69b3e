package sqlinline

const QCreateProviderKeysTable = `--sql 3b9e2c71-6a04-4d8f-b5e1-c07d9a2f4e38
create table if not exists provider_keys (
    provider text primary key,
    api_key text not null,
    source text not null default 'cli',
    updated_at timestamptz not null default now()
);
`

const QSelectProviderKey = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select api_key, source, updated_at
from provider_keys
where provider = $1::text;
`

const QUpsertProviderKey = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into provider_keys (provider, api_key, source, updated_at)
values ($1::text, $2::text, $3::text, now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    source = excluded.source,
    updated_at = now();
`
