package sqlinline

const QSelectProviderCredential = `--sql d65ea590-d3f0-4eed-902c-0f32bb913f3d
select token
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql 545178e6-e0ac-4f2f-ac48-afc650c295d1
insert into provider_credentials (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
